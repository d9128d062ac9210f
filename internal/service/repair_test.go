package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repairdesk/backend/internal/domain"
	"repairdesk/backend/internal/monitoring"
	"repairdesk/backend/internal/storage/filesystem"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func validForm() domain.RepairForm {
	return domain.RepairForm{
		School:          "第一中学",
		Building:        "3号楼",
		Room:            "301",
		Description:     "空调不制冷",
		AppointmentTime: "2026-10-20T10:00",
	}
}

// setupRepair 组装完整的报修服务
func setupRepair(t *testing.T) (*RepairService, *MockSender, *filesystem.Store, *monitoring.Metrics) {
	t.Helper()

	store, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	uploads := NewUploadService(store, metrics, zap.NewNop())
	validator := domain.NewRepairValidator(
		domain.WithClock(func() time.Time { return fixedNow }),
		domain.WithLocation(time.UTC),
	)
	sender := &MockSender{}

	svc := NewRepairService(uploads, validator, NewAssembler(time.UTC), sender, "mock", metrics, zap.NewNop())
	return svc, sender, store, metrics
}

func TestSubmitSuccess(t *testing.T) {
	svc, sender, store, metrics := setupRepair(t)

	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg *domain.OutboundMessage) bool {
		if msg.Subject != "新的报修申请" || len(msg.Attachments) != 2 {
			return false
		}
		// 发送时图片必须仍在磁盘上
		for _, a := range msg.Attachments {
			if _, err := os.Stat(a.Path); err != nil {
				return false
			}
		}
		return msg.Attachments[0].Filename == "photo-1.jpg" && msg.Attachments[1].Filename == "photo-2.jpg"
	})).Return(nil).Once()

	err := svc.Submit(context.Background(), SubmitInput{
		Form:      validForm(),
		Files:     buildFileHeaders(t, jpeg("a.jpg"), jpeg("b.jpg")),
		RequestID: "req-1",
	})
	require.NoError(t, err)

	sender.AssertExpectations(t)
	assert.Equal(t, 0, residue(t, store), "发送成功后删除图片")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues(monitoring.OutcomeSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.UploadsInFlight))
}

func TestSubmitWithoutPhotos(t *testing.T) {
	svc, sender, store, _ := setupRepair(t)
	sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, svc.Submit(context.Background(), SubmitInput{Form: validForm()}))
	sender.AssertExpectations(t)
	assert.Equal(t, 0, residue(t, store))
}

func TestSubmitValidationFailure(t *testing.T) {
	svc, sender, store, metrics := setupRepair(t)

	form := validForm()
	form.School = ""
	form.Phone = "12345"

	err := svc.Submit(context.Background(), SubmitInput{
		Form:  form,
		Files: buildFileHeaders(t, jpeg("a.jpg")),
	})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{domain.MsgSchoolLength, domain.MsgPhoneInvalid}, validationErr.Result.Messages())

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Equal(t, 0, residue(t, store), "校验失败也要删除图片")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues(monitoring.OutcomeInvalid)))
}

func TestSubmitAttachmentRejected(t *testing.T) {
	svc, sender, store, _ := setupRepair(t)

	err := svc.Submit(context.Background(), SubmitInput{
		Form: validForm(),
		Files: buildFileHeaders(t, jpeg("a.jpg"),
			testFile{name: "notes.txt", contentType: "text/plain", content: []byte("hi")}),
	})

	assert.ErrorIs(t, err, domain.ErrInvalidFileType)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Equal(t, 0, residue(t, store))
}

func TestSubmitDispatchFailure(t *testing.T) {
	svc, sender, store, metrics := setupRepair(t)

	smtpDown := errors.New("dial tcp: connection refused")
	sender.On("Send", mock.Anything, mock.Anything).Return(smtpDown).Once()

	err := svc.Submit(context.Background(), SubmitInput{
		Form:  validForm(),
		Files: buildFileHeaders(t, jpeg("a.jpg"), jpeg("b.jpg"), jpeg("c.jpg")),
	})

	var dispatchErr *domain.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.ErrorIs(t, err, smtpDown)

	sender.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, 0, residue(t, store), "发送失败也要删除图片")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues(monitoring.OutcomeDispatchError)))
}

func TestSubmitSanitizesHTML(t *testing.T) {
	svc, sender, _, _ := setupRepair(t)

	var captured *domain.OutboundMessage
	sender.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.OutboundMessage)
	}).Return(nil).Once()

	form := validForm()
	form.Description = "<img src=x onerror=alert(1)>"
	require.NoError(t, svc.Submit(context.Background(), SubmitInput{Form: form}))

	require.NotNil(t, captured)
	assert.NotContains(t, captured.HTMLBody, "<img")
	assert.Contains(t, captured.HTMLBody, "&lt;img src=x onerror=alert(1)&gt;")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, monitoring.OutcomeSuccess, outcome(nil))
	assert.Equal(t, monitoring.OutcomeInvalid, outcome(&domain.ValidationError{}))
	assert.Equal(t, monitoring.OutcomeRejected, outcome(&domain.AttachmentError{Err: domain.ErrTooManyFiles}))
	assert.Equal(t, monitoring.OutcomeDispatchError, outcome(&domain.DispatchError{Err: errors.New("x")}))
	assert.Equal(t, monitoring.OutcomeStorageError, outcome(&domain.StorageError{Op: "save", Err: errors.New("x")}))
}
