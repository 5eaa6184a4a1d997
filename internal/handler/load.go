package handler

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paiban/loadplan/internal/constraints"
	"github.com/paiban/loadplan/internal/repository"
	"github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/importer"
	"github.com/paiban/loadplan/pkg/model"
)

// Context 查询货物、挂车与默认规格
//
// 查询参数: search, status, lane, destination, constraint, assigned(true/false),
// order_by(id/weight/pallets), order_dir(asc/desc), limit, trailer_search
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.ListContext(filter, r.URL.Query().Get("trailer_search")))
}

func parseListFilter(r *http.Request) (repository.ListFilter, error) {
	q := r.URL.Query()
	f := repository.DefaultListFilter()
	f.Search = strings.TrimSpace(q.Get("search"))
	f.Status = strings.TrimSpace(q.Get("status"))
	f.Lane = strings.TrimSpace(q.Get("lane"))
	f.Destination = strings.TrimSpace(q.Get("destination"))

	if c := q.Get("constraint"); c != "" {
		kind := model.ParseConstraintKind(c)
		if kind == model.KindUnknown {
			return f, errors.InvalidInput("constraint", "未知约束: "+c)
		}
		f.Constraint = kind
	}
	if a := q.Get("assigned"); a != "" {
		b, err := strconv.ParseBool(a)
		if err != nil {
			return f, errors.InvalidInput("assigned", "必须是 true 或 false")
		}
		f = f.WithAssigned(b)
	}
	if o := q.Get("order_by"); o != "" {
		switch o {
		case repository.OrderByID, repository.OrderByWeight, repository.OrderByPallets:
			f.OrderBy = o
		default:
			return f, errors.InvalidInput("order_by", "只支持 id/weight/pallets")
		}
	}
	if d := q.Get("order_dir"); d != "" {
		d = strings.ToLower(d)
		if d != "asc" && d != "desc" {
			return f, errors.InvalidInput("order_dir", "只支持 asc/desc")
		}
		f.OrderDir = d
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return f, errors.InvalidInput("limit", "必须是正整数")
		}
		f = f.WithLimit(n)
	}
	return f, nil
}

// TrailerSpecDefaults 读取或更新默认挂车规格
func (h *Handler) TrailerSpecDefaults(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPut) {
		return
	}

	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, h.engine.TrailerSpecDefaults())
		return
	}

	var patch model.TrailerSpecPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondErr(w, r, err)
		return
	}
	spec, err := h.engine.UpdateTrailerSpecDefaults(r.Context(), &patch)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, spec)
}

// Events 按游标分页读取事件
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	cursor, err := parseCursor(q.Get("cursor"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	limit := 0
	if l := q.Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit <= 0 {
			respondError(w, errors.InvalidInput("limit", "必须是正整数"))
			return
		}
	}
	respondJSON(w, http.StatusOK, h.engine.ListEvents(cursor, limit))
}

// ImportLoads 导入货物文件
//
// 支持 multipart 表单（字段 file）或直接上传文件内容。
// 文件类型依次取自 kind 参数、文件扩展名、Content-Type。
func (h *Handler) ImportLoads(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	q := r.URL.Query()
	mode, err := importer.ParseMode(q.Get("mode"))
	if err != nil {
		respondErr(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	data, kindHint, err := h.readUpload(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	if k := q.Get("kind"); k != "" {
		kindHint = k
	}
	kind, err := importer.ParseKind(kindHint)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	res, err := h.engine.ImportLoads(r.Context(), data, kind, mode)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// readUpload 读取上传内容并推断文件类型
func (h *Handler) readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return nil, "", errors.Wrap(err, errors.CodeInvalidInput, "解析上传表单失败")
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.InvalidInput("file", "缺少上传文件")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		hint := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
		if hint == "" {
			hint = fh.Header.Get("Content-Type")
		}
		return data, hint, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return data, mediaType, nil
}

// ConstraintLibrary 约束库，可用 kind 参数只查看某种货物约束
func (h *Handler) ConstraintLibrary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	k := r.URL.Query().Get("kind")
	if k == "" {
		respondJSON(w, http.StatusOK, constraints.LibraryResponse{Library: constraints.GetLibrary()})
		return
	}
	kind := model.ParseConstraintKind(k)
	if kind == model.KindUnknown && !strings.EqualFold(k, string(model.KindUnknown)) {
		respondError(w, errors.InvalidInput("kind", "未知约束: "+k))
		return
	}
	respondJSON(w, http.StatusOK, constraints.LibraryResponse{Library: constraints.GetByKind(kind)})
}
