package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/booking-bot/internal/models"
)

func TestEncodeFormats(t *testing.T) {
	assert.Equal(t, "claim|7|675120396", EncodeClaim(7, 675120396))
	assert.Equal(t, "updateStatus|7|✅ Прыедзе", EncodeUpdateStatus(7, models.StatusWillCome))
	assert.Equal(t, "complete|7", EncodeComplete(7))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected Action
	}{
		{
			name:     "claim",
			data:     "claim|1|8153757571",
			expected: Action{Kind: KindClaim, RequestID: 1, ManagerID: 8153757571},
		},
		{
			name:     "status update",
			data:     "updateStatus|12|🔔 Апавешчаны",
			expected: Action{Kind: KindUpdateStatus, RequestID: 12, Status: models.StatusAlerted},
		},
		{
			name:     "complete",
			data:     "complete|3",
			expected: Action{Kind: KindComplete, RequestID: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"claim",
		"claim|x|1",
		"claim|1",
		"claim|1|bob",
		"updateStatus|1",
		"updateStatus|1|",
		"delete|1",
	} {
		_, err := Parse(data)
		assert.Error(t, err, data)
	}
}

func TestIsRequestAction(t *testing.T) {
	assert.True(t, IsRequestAction("claim|1|2"))
	assert.True(t, IsRequestAction("complete|1"))
	assert.True(t, IsRequestAction(EncodeUpdateStatus(1, models.StatusCanceled)))
	assert.False(t, IsRequestAction("claimed|1"))
	assert.False(t, IsRequestAction("lang:en"))
}
