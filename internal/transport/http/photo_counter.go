package httptransport

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"repairdesk/backend/internal/domain"
)

// photoCounter 在表单解析的同时旁路统计已读到的图片个数
//
// 请求体超过上限时 ParseMultipartForm 整体失败，已读部分随之丢弃；
// 计数用于区分图片过多与单张图片过大。
type photoCounter struct {
	pw    *io.PipeWriter
	done  chan struct{}
	count int
}

// countPhotos 为 multipart 请求挂上计数器，非 multipart 请求返回 nil
func countPhotos(req *http.Request) *photoCounter {
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil
	}

	pr, pw := io.Pipe()
	pc := &photoCounter{pw: pw, done: make(chan struct{})}

	body := req.Body
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.TeeReader(body, pw), body}

	go func() {
		defer close(pc.done)

		mr := multipart.NewReader(pr, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			if part.FormName() == domain.FieldPhotos && part.FileName() != "" {
				pc.count++
			}
			_, _ = io.Copy(io.Discard, part)
		}

		// 解析提前结束时继续消费，避免阻塞主读取
		_, _ = io.Copy(io.Discard, pr)
	}()

	return pc
}

// Wait 结束统计，返回已读到的图片个数
func (pc *photoCounter) Wait() int {
	if pc == nil {
		return 0
	}
	_ = pc.pw.Close()
	<-pc.done
	return pc.count
}
