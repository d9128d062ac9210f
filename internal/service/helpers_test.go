package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/monitoring"
	"repairdesk/backend/internal/storage/filesystem"
)

var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
)

// testFile 构造上传文件用的描述
type testFile struct {
	name        string
	contentType string
	content     []byte
}

func jpeg(name string) testFile {
	return testFile{name: name, contentType: "image/jpeg", content: append(append([]byte{}, jpegHeader...), "body"...)}
}

// buildFileHeaders 通过真实的 multipart 解析得到 FileHeader
func buildFileHeaders(t *testing.T, files ...testFile) []*multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photos"; filename="%s"`, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["photos"]
}

// setupUploads 在临时目录上创建上传服务
func setupUploads(t *testing.T) (*UploadService, *filesystem.Store) {
	t.Helper()

	store, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	return NewUploadService(store, monitoring.NewMetrics(), zap.NewNop()), store
}

// residue 返回上传目录中残留的文件数
func residue(t *testing.T, store *filesystem.Store) int {
	t.Helper()

	entries, err := os.ReadDir(store.BasePath())
	require.NoError(t, err)
	return len(entries)
}

// MockSender 模拟邮件发送器
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
