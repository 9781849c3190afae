package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewExport(t *testing.T) {
	e := NewExport(KindSpreadsheet, "2024-2025", "attendance.xlsx", []byte("abc"))

	assert.NotEqual(t, [16]byte{}, [16]byte(e.ID))
	assert.Equal(t, 3, e.SizeBytes)
	assert.Equal(t, ContentTypeXLSX, e.ContentType())
	assert.Equal(t, ContentTypePDF, KindProgress.ContentType())
}

func TestLoadRun_Finish(t *testing.T) {
	r := NewLoadRun(TriggerScheduler, "2024-2025", 40)
	assert.Zero(t, r.Duration())

	r.Finish(7, "fully_loaded", 2, errors.New("class 2:cec failed"))

	assert.Equal(t, uint64(7), r.Generation)
	assert.Equal(t, 2, r.Failures)
	assert.Equal(t, "class 2:cec failed", r.Error)
	assert.NotNil(t, r.FinishedAt)
	assert.GreaterOrEqual(t, r.Duration().Nanoseconds(), int64(0))
}
