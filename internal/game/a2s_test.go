package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/models"
)

func TestProbeRecordWithoutAddress(t *testing.T) {
	opts := config.A2S{Timeout: 100 * time.Millisecond, BufferSize: 1400}

	_, err := ProbeRecord(models.ServerRecord{ServerID: "a", Port: 27015}, opts)
	assert.ErrorIs(t, err, ErrUnprobeable)

	_, err = ProbeRecord(models.ServerRecord{ServerID: "a", Address: "192.0.2.1"}, opts)
	assert.ErrorIs(t, err, ErrUnprobeable)
}
