package service

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/backend/internal/domain"
)

var storageKeyPattern = regexp.MustCompile(`^\d{13}-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestAcceptStoresImages(t *testing.T) {
	uploads, store := setupUploads(t)
	session := uploads.Open()

	png := testFile{name: "Leak.PNG", contentType: "image/png", content: append(append([]byte{}, pngHeader...), "data"...)}
	attachments, err := session.Accept(context.Background(), buildFileHeaders(t, jpeg("a.jpg"), png))
	require.NoError(t, err)
	require.Len(t, attachments, 2)

	assert.Equal(t, ".jpg", attachments[0].Ext)
	assert.Equal(t, ".png", attachments[1].Ext, "扩展名统一小写")
	assert.Equal(t, "image/png", attachments[1].ContentType)
	assert.Equal(t, "Leak.PNG", attachments[1].OriginalName)
	assert.NotEqual(t, attachments[0].Key, attachments[1].Key)

	for _, a := range attachments {
		assert.Regexp(t, storageKeyPattern, a.Key)
		content, err := os.ReadFile(a.StoragePath)
		require.NoError(t, err)
		assert.Equal(t, a.Size, int64(len(content)))
	}
	assert.Equal(t, 2, residue(t, store))
	assert.Len(t, session.Attachments(), 2)
}

func TestAcceptNoFiles(t *testing.T) {
	uploads, store := setupUploads(t)

	attachments, err := uploads.Open().Accept(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, attachments)
	assert.Equal(t, 0, residue(t, store))
}

func TestAcceptRejectsWholeBatch(t *testing.T) {
	oversized := testFile{name: "big.jpg", contentType: "image/jpeg",
		content: append(append([]byte{}, jpegHeader...), make([]byte, domain.MaxAttachmentSize)...)}
	exe := testFile{name: "photo.jpg", contentType: "image/jpeg", content: []byte{0x4D, 0x5A, 0x90, 0x00, 0x03}}
	svg := testFile{name: "plan.png", contentType: "image/png", content: []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)}

	tests := []struct {
		name     string
		files    []testFile
		expected error
	}{
		{"six files", []testFile{jpeg("1.jpg"), jpeg("2.jpg"), jpeg("3.jpg"), jpeg("4.jpg"), jpeg("5.jpg"), jpeg("6.jpg")}, domain.ErrTooManyFiles},
		{"text file among images", []testFile{jpeg("1.jpg"), {name: "notes.txt", contentType: "text/plain", content: []byte("hello")}}, domain.ErrInvalidFileType},
		{"oversized image", []testFile{jpeg("1.jpg"), oversized}, domain.ErrFileTooLarge},
		{"executable disguised as image", []testFile{jpeg("1.jpg"), exe}, domain.ErrInvalidFileType},
		{"svg renamed to png", []testFile{jpeg("1.jpg"), svg}, domain.ErrInvalidFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads, store := setupUploads(t)
			session := uploads.Open()

			attachments, err := session.Accept(context.Background(), buildFileHeaders(t, tt.files...))
			assert.Nil(t, attachments)

			var attErr *domain.AttachmentError
			require.True(t, errors.As(err, &attErr), "expected AttachmentError, got %v", err)
			assert.ErrorIs(t, err, tt.expected)
			assert.Equal(t, 0, residue(t, store), "被拒绝的批次不能留下文件")
			assert.Empty(t, session.Attachments())
		})
	}
}

func TestAcceptDetectsUnderstatedSize(t *testing.T) {
	uploads, store := setupUploads(t)

	big := testFile{name: "big.jpg", contentType: "image/jpeg",
		content: append(append([]byte{}, jpegHeader...), make([]byte, domain.MaxAttachmentSize)...)}
	headers := buildFileHeaders(t, jpeg("ok.jpg"), big)
	headers[1].Size = 1024

	_, err := uploads.Open().Accept(context.Background(), headers)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
	assert.Equal(t, 0, residue(t, store), "已写入的同批文件也要删除")
}

func TestAcceptCountsAcrossBatches(t *testing.T) {
	uploads, store := setupUploads(t)
	session := uploads.Open()

	_, err := session.Accept(context.Background(), buildFileHeaders(t, jpeg("1.jpg"), jpeg("2.jpg"), jpeg("3.jpg")))
	require.NoError(t, err)

	_, err = session.Accept(context.Background(), buildFileHeaders(t, jpeg("4.jpg"), jpeg("5.jpg"), jpeg("6.jpg")))
	assert.ErrorIs(t, err, domain.ErrTooManyFiles)
	assert.Equal(t, 3, residue(t, store), "之前接收的批次保持不变")

	require.NoError(t, session.Release())
	assert.Equal(t, 0, residue(t, store))
}

func TestAcceptExactlyFiveFiles(t *testing.T) {
	uploads, store := setupUploads(t)
	session := uploads.Open()

	attachments, err := session.Accept(context.Background(),
		buildFileHeaders(t, jpeg("1.jpg"), jpeg("2.jpg"), jpeg("3.jpg"), jpeg("4.jpg"), jpeg("5.jpg")))
	require.NoError(t, err)
	assert.Len(t, attachments, domain.MaxAttachments)
	assert.Equal(t, domain.MaxAttachments, residue(t, store))
}

func TestSessionReleaseIsIdempotent(t *testing.T) {
	uploads, store := setupUploads(t)
	session := uploads.Open()

	_, err := session.Accept(context.Background(), buildFileHeaders(t, jpeg("1.jpg"), jpeg("2.jpg")))
	require.NoError(t, err)

	require.NoError(t, session.Release())
	assert.Equal(t, 0, residue(t, store))
	assert.NoError(t, session.Release())

	_, err = session.Accept(context.Background(), buildFileHeaders(t, jpeg("3.jpg")))
	assert.ErrorIs(t, err, ErrSessionReleased)
	assert.Equal(t, 0, residue(t, store))
}

func TestReleaseMissingFileIsNotAnError(t *testing.T) {
	uploads, store := setupUploads(t)
	session := uploads.Open()

	attachments, err := session.Accept(context.Background(), buildFileHeaders(t, jpeg("1.jpg")))
	require.NoError(t, err)
	require.NoError(t, os.Remove(attachments[0].StoragePath))

	assert.NoError(t, uploads.Release(attachments))
	assert.Equal(t, 0, residue(t, store))
}

func TestAcceptKeepsUnsafeExtensionOut(t *testing.T) {
	uploads, _ := setupUploads(t)

	attachments, err := uploads.Open().Accept(context.Background(),
		buildFileHeaders(t, testFile{name: "photo", contentType: "image/jpeg", content: jpegHeader}))
	require.NoError(t, err)
	assert.Empty(t, attachments[0].Ext)
	assert.False(t, strings.Contains(attachments[0].StorageName(), "."))
}
