package handler

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/model"
)

const (
	// maxUploadBytes はmultipartリクエスト全体の上限。
	maxUploadBytes = 12 << 20
	// maxFileBytes は1ファイルあたりの上限。
	maxFileBytes = 10 << 20
	// memoryLimit はParseMultipartFormがメモリに保持する上限。
	memoryLimit = 8 << 20
)

// formInput はmultipartまたはJSONで送られたフォーム入力。
type formInput struct {
	Values map[string]any
	Files  map[string]*form.File
}

// isMultipart はリクエストがmultipart/form-dataかどうかを判定する。
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

// readFormInput はリクエストボディからフォーム入力を読み取る。
// multipartの場合は各フィールドの最初の値とファイルを、それ以外はJSONオブジェクトを読む。
func readFormInput(w http.ResponseWriter, r *http.Request) (*formInput, error) {
	in := &formInput{Values: make(map[string]any), Files: make(map[string]*form.File)}

	if !isMultipart(r) {
		if err := decodeJSON(w, r, &in.Values); err != nil {
			return nil, err
		}
		return in, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		return nil, model.NewInvalidRequestError("multipartの解析に失敗しました")
	}
	defer r.MultipartForm.RemoveAll()

	for name, values := range r.MultipartForm.Value {
		if name == form.MethodOverrideField || len(values) == 0 {
			continue
		}
		in.Values[name] = values[0]
	}
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		h := headers[0]
		if h.Size > maxFileBytes {
			return nil, model.NewValidationError("", map[string][]string{
				name: {"ファイルサイズが大きすぎます。"},
			})
		}
		f, err := h.Open()
		if err != nil {
			return nil, model.NewInvalidRequestError("ファイルを読み取れません")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, model.NewInvalidRequestError("ファイルを読み取れません")
		}
		contentType := h.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		in.Files[name] = &form.File{Name: h.Filename, ContentType: contentType, Data: data}
	}
	return in, nil
}
