// Package importer 货物批量导入：CSV/JSON 解析、行级校验与合并模式
package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/model"
)

// Kind 文件类型
type Kind string

const (
	KindCSV  Kind = "csv"
	KindJSON Kind = "json"
)

// ParseKind 解析文件类型
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "text/csv":
		return KindCSV, nil
	case "json", "application/json":
		return KindJSON, nil
	}
	return "", apperrors.InvalidInput("kind", fmt.Sprintf("不支持的文件类型: %q", s))
}

// Mode 合并模式
type Mode string

const (
	ModeAppend  Mode = "append"  // 仅插入新 id，已存在的跳过
	ModeUpsert  Mode = "upsert"  // 插入新 id，合并更新已存在的
	ModeReplace Mode = "replace" // 先清空全部货物再插入
)

// ParseMode 解析合并模式，空值默认为 upsert
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeUpsert:
		return ModeUpsert, nil
	case ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", apperrors.InvalidInput("mode", fmt.Sprintf("不支持的导入模式: %q", s))
}

// RowError 行级错误
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Record 一行解析结果，Present 记录该行实际提供了哪些字段
type Record struct {
	Row     int
	Load    *model.Load
	Present map[string]bool
}

func (r Record) has(field string) bool {
	return r.Present[field]
}

// Result 导入结果
type Result struct {
	Imported   int        `json:"imported"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	TotalLoads int        `json:"total_loads"`
	Errors     []RowError `json:"errors"`
}

// Parse 解析文件内容。
// 文件整体无法解析时返回 error；单行问题收集为 RowError。
func Parse(data []byte, kind Kind) ([]Record, []RowError, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, apperrors.InvalidInput("file", "文件内容为空")
	}

	var rows []rawRow
	var err error
	switch kind {
	case KindCSV:
		rows, err = readCSV(data)
	case KindJSON:
		rows, err = readJSON(data)
	default:
		return nil, nil, apperrors.InvalidInput("kind", fmt.Sprintf("不支持的文件类型: %q", kind))
	}
	if err != nil {
		return nil, nil, err
	}

	records := make([]Record, 0, len(rows))
	var rowErrs []RowError
	for _, raw := range rows {
		rec, msg := buildRecord(raw)
		if msg != "" {
			rowErrs = append(rowErrs, RowError{Row: raw.row, Message: msg})
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

// rawRow 规范字段名 -> 原始值
type rawRow struct {
	row         int
	values      map[string]string
	constraints []string
	hasCons     bool
}

func readCSV(data []byte) ([]rawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.InvalidInput("file", fmt.Sprintf("CSV 解析失败: %v", err))
	}
	if len(records) == 0 {
		return nil, apperrors.InvalidInput("file", "CSV 缺少表头")
	}

	fields := make([]string, len(records[0]))
	known := 0
	for i, h := range records[0] {
		fields[i] = CanonicalField(h)
		if fields[i] != "" {
			known++
		}
	}
	if known == 0 {
		return nil, apperrors.InvalidInput("file", "CSV 表头中没有可识别的列")
	}

	rows := make([]rawRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		raw := rawRow{row: i + 2, values: make(map[string]string)}
		for j, cell := range record {
			if j >= len(fields) || fields[j] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if fields[j] == fieldConstraints {
				raw.constraints = append(raw.constraints, splitConstraints(cell)...)
				raw.hasCons = true
				continue
			}
			// 同义列重复时取第一个非空值
			if _, ok := raw.values[fields[j]]; !ok {
				raw.values[fields[j]] = cell
			}
		}
		rows = append(rows, raw)
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func readJSON(data []byte) ([]rawRow, error) {
	items, err := decodeJSONItems(data)
	if err != nil {
		return nil, err
	}

	rows := make([]rawRow, 0, len(items))
	for i, item := range items {
		raw := rawRow{row: i + 1, values: make(map[string]string)}
		// 按 key 排序保证同义字段取值稳定
		for _, k := range sortedKeys(item) {
			field := CanonicalField(k)
			if field == "" {
				continue
			}
			v := item[k]
			if field == fieldConstraints {
				raw.constraints = append(raw.constraints, jsonConstraints(v)...)
				raw.hasCons = true
				continue
			}
			s := jsonScalar(v)
			if s == "" {
				continue
			}
			if _, ok := raw.values[field]; !ok {
				raw.values[field] = s
			}
		}
		// 嵌套的 assignment 对象
		if a, ok := item["assignment"].(map[string]interface{}); ok {
			for _, k := range sortedKeys(a) {
				v := a[k]
				field := CanonicalField(k)
				if field == fieldID {
					field = fieldTrailerID
				}
				if field != fieldTrailerID && field != fieldTrailerUnit {
					continue
				}
				if s := jsonScalar(v); s != "" {
					if _, exists := raw.values[field]; !exists {
						raw.values[field] = s
					}
				}
			}
		}
		rows = append(rows, raw)
	}
	return rows, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decodeJSONItems(data []byte) ([]map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var top interface{}
	if err := dec.Decode(&top); err != nil {
		return nil, apperrors.InvalidInput("file", fmt.Sprintf("JSON 解析失败: %v", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, apperrors.InvalidInput("file", "JSON 文件只能包含一个顶层值")
	}

	var list []interface{}
	switch v := top.(type) {
	case []interface{}:
		list = v
	case map[string]interface{}:
		loads, ok := v["loads"].([]interface{})
		if !ok {
			return nil, apperrors.InvalidInput("file", "JSON 对象缺少 loads 数组")
		}
		list = loads
	default:
		return nil, apperrors.InvalidInput("file", "JSON 顶层必须是数组或包含 loads 的对象")
	}

	items := make([]map[string]interface{}, len(list))
	for i, el := range list {
		obj, ok := el.(map[string]interface{})
		if !ok {
			// 非对象行按空行处理，后续生成行错误
			obj = map[string]interface{}{}
		}
		items[i] = obj
	}
	return items, nil
}

func jsonScalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func jsonConstraints(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return splitConstraints(t)
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, el := range t {
			if s := jsonScalar(el); s != "" {
				out = append(out, splitConstraints(s)...)
			}
		}
		return out
	}
	return nil
}

// buildRecord 校验一行并构造货物，返回非空字符串表示行错误
func buildRecord(raw rawRow) (Record, string) {
	rec := Record{Row: raw.row, Load: &model.Load{}, Present: make(map[string]bool)}
	load := rec.Load

	id := raw.values[fieldID]
	if id == "" {
		id = raw.values[fieldLoadNumber]
	}
	if id == "" {
		return rec, "缺少 id，且没有可用的 load_number"
	}
	load.ID = id
	rec.Present[fieldID] = true

	if v, ok := raw.values[fieldPallets]; ok {
		n, err := parseNumber(v)
		if err != nil || n <= 0 || n != float64(int(n)) {
			return rec, fmt.Sprintf("pallets 必须为正整数: %q", v)
		}
		load.Pallets = int(n)
		rec.Present[fieldPallets] = true
	}

	if v, ok := raw.values[fieldWeight]; ok {
		w, err := parseNumber(v)
		if err != nil || w <= 0 {
			return rec, fmt.Sprintf("weight_lbs 必须大于0: %q", v)
		}
		load.WeightLbs = w
		rec.Present[fieldWeight] = true
	}

	if v, ok := raw.values[fieldCube]; ok {
		c, err := parseNumber(v)
		if err != nil || c < 0 {
			return rec, fmt.Sprintf("cube_ft 无效: %q", v)
		}
		load.CubeFt = &c
		rec.Present[fieldCube] = true
	}

	setString := func(field string, dst *string) {
		if v, ok := raw.values[field]; ok {
			*dst = v
			rec.Present[field] = true
		}
	}
	setString(fieldLoadNumber, &load.LoadNumber)
	setString(fieldStopWindow, &load.StopWindow)
	setString(fieldLane, &load.Lane)
	setString(fieldDestination, &load.DestinationCode)
	setString(fieldStatus, &load.Status)

	if raw.hasCons {
		set := make(model.ConstraintSet, 0, len(raw.constraints))
		for _, c := range raw.constraints {
			set = append(set, model.ParseConstraintKind(c))
		}
		load.Constraints = set.Normalize()
		rec.Present[fieldConstraints] = true
	}

	trailerID, hasID := raw.values[fieldTrailerID]
	trailerUnit, hasUnit := raw.values[fieldTrailerUnit]
	if hasID || hasUnit {
		load.Assignment = &model.LoadAssignment{TrailerID: trailerID, TrailerUnit: trailerUnit}
		rec.Present[fieldTrailerID] = true
	}

	return rec, ""
}

// parseNumber 去掉千分位逗号和 lbs 后缀后解析，拒绝 NaN 与 Inf
func parseNumber(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "lbs")
	s = strings.TrimSuffix(s, "lb")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("非有限数值: %q", s)
	}
	return v, nil
}

// Merge 按模式把记录合并到现有货物列表。
// 不修改 existing 中的对象；返回新列表（原有顺序在前，新货物按文件顺序追加）。
func Merge(existing []*model.Load, records []Record, mode Mode) ([]*model.Load, Result) {
	var loads []*model.Load
	if mode != ModeReplace {
		loads = make([]*model.Load, 0, len(existing)+len(records))
		loads = append(loads, existing...)
	} else {
		loads = make([]*model.Load, 0, len(records))
	}

	index := make(map[string]int, len(loads))
	for i, l := range loads {
		index[l.ID] = i
	}
	// 本次导入中已克隆过的位置，避免重复克隆
	owned := make(map[int]bool)

	var result Result
	for _, rec := range records {
		pos, exists := index[rec.Load.ID]
		if !exists {
			if msg := missingRequired(rec); msg != "" {
				result.Errors = append(result.Errors, RowError{Row: rec.Row, Message: msg})
				continue
			}
			load := rec.Load.Clone()
			loads = append(loads, load)
			index[load.ID] = len(loads) - 1
			owned[len(loads)-1] = true
			result.Imported++
			continue
		}

		if mode == ModeAppend {
			result.Skipped++
			continue
		}

		if !owned[pos] {
			loads[pos] = loads[pos].Clone()
			owned[pos] = true
		}
		mergeInto(loads[pos], rec)
		result.Updated++
	}

	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].Row < result.Errors[j].Row
	})
	result.TotalLoads = len(loads)
	return loads, result
}

func missingRequired(rec Record) string {
	switch {
	case !rec.has(fieldPallets):
		return "缺少 pallets"
	case !rec.has(fieldWeight):
		return "缺少 weight_lbs"
	}
	return ""
}

// mergeInto 只覆盖该行实际提供的字段；未提供 status 时保留原值
func mergeInto(dst *model.Load, rec Record) {
	src := rec.Load
	if rec.has(fieldLoadNumber) {
		dst.LoadNumber = src.LoadNumber
	}
	if rec.has(fieldPallets) {
		dst.Pallets = src.Pallets
	}
	if rec.has(fieldWeight) {
		dst.WeightLbs = src.WeightLbs
	}
	if rec.has(fieldCube) {
		v := *src.CubeFt
		dst.CubeFt = &v
	}
	if rec.has(fieldStopWindow) {
		dst.StopWindow = src.StopWindow
	}
	if rec.has(fieldLane) {
		dst.Lane = src.Lane
	}
	if rec.has(fieldConstraints) {
		dst.Constraints = append(model.ConstraintSet(nil), src.Constraints...)
	}
	if rec.has(fieldDestination) {
		dst.DestinationCode = src.DestinationCode
	}
	if rec.has(fieldStatus) {
		dst.Status = src.Status
	}
	if rec.has(fieldTrailerID) {
		a := *src.Assignment
		dst.Assignment = &a
	}
}

// Import 解析并合并，行错误与合并错误一并返回
func Import(existing []*model.Load, data []byte, kind Kind, mode Mode) ([]*model.Load, Result, error) {
	records, rowErrs, err := Parse(data, kind)
	if err != nil {
		return nil, Result{}, err
	}
	loads, result := Merge(existing, records, mode)
	result.Errors = JoinErrors(rowErrs, result.Errors)
	return loads, result, nil
}

// JoinErrors 合并解析阶段与合并阶段的行错误，按行号排序，结果非 nil
func JoinErrors(parsed, merged []RowError) []RowError {
	out := make([]RowError, 0, len(parsed)+len(merged))
	out = append(out, parsed...)
	out = append(out, merged...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Row < out[j].Row
	})
	return out
}
