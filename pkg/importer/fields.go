package importer

import "strings"

// 规范字段名
const (
	fieldID          = "id"
	fieldLoadNumber  = "load_number"
	fieldPallets     = "pallets"
	fieldWeight      = "weight_lbs"
	fieldCube        = "cube_ft"
	fieldStopWindow  = "stop_window"
	fieldLane        = "lane"
	fieldConstraints = "constraints"
	fieldDestination = "destination_code"
	fieldStatus      = "status"
	fieldTrailerID   = "trailer_id"
	fieldTrailerUnit = "trailer_unit"
)

// aliases 归一化后的列名 -> 规范字段名
var aliases = map[string]string{
	"id":         fieldID,
	"loadid":     fieldID,
	"load":       fieldID,
	"shipmentid": fieldID,

	"loadnumber": fieldLoadNumber,
	"loadno":     fieldLoadNumber,
	"loadnum":    fieldLoadNumber,
	"ref":        fieldLoadNumber,
	"reference":  fieldLoadNumber,

	"pallets":     fieldPallets,
	"pallet":      fieldPallets,
	"palletcount": fieldPallets,
	"numpallets":  fieldPallets,
	"plts":        fieldPallets,

	"weightlbs":   fieldWeight,
	"weight":      fieldWeight,
	"weightlb":    fieldWeight,
	"lbs":         fieldWeight,
	"grossweight": fieldWeight,

	"cubeft":    fieldCube,
	"cube":      fieldCube,
	"cubicfeet": fieldCube,
	"cuft":      fieldCube,

	"stopwindow":     fieldStopWindow,
	"window":         fieldStopWindow,
	"deliverywindow": fieldStopWindow,
	"timewindow":     fieldStopWindow,

	"lane":      fieldLane,
	"lanelabel": fieldLane,

	"constraints": fieldConstraints,
	"constraint":  fieldConstraints,
	"flags":       fieldConstraints,
	"handling":    fieldConstraints,

	"destinationcode": fieldDestination,
	"destination":     fieldDestination,
	"dest":            fieldDestination,
	"destcode":        fieldDestination,

	"status": fieldStatus,

	"trailerid": fieldTrailerID,
	"trailer":   fieldTrailerID,

	"trailerunit": fieldTrailerUnit,
	"unit":        fieldTrailerUnit,
}

// NormalizeHeader 小写并去掉非字母数字字符
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalField 列名对应的规范字段，未知列返回空
func CanonicalField(header string) string {
	return aliases[NormalizeHeader(header)]
}

// splitConstraints 按 | , ; 拆分约束列表
func splitConstraints(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
