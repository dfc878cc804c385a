package ledger

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/opencoe/exam-paper-api/internal/models"
)

type stubLogFilterer struct {
	logs []types.Log
}

func (s *stubLogFilterer) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return s.logs, nil
}

func testRecorder(t *testing.T) *Recorder {
	parsed, err := abi.JSON(strings.NewReader(paperRegistryABI))
	require.NoError(t, err)
	return &Recorder{contractABI: parsed}
}

func packEvent(t *testing.T, r *Recorder, name string, args ...interface{}) types.Log {
	event, ok := r.contractABI.Events[name]
	require.True(t, ok)

	data, err := event.Inputs.Pack(args...)
	require.NoError(t, err)

	return types.Log{
		Topics:      []common.Hash{event.ID},
		Data:        data,
		TxHash:      common.HexToHash("0xabc123"),
		BlockNumber: 42,
	}
}

func TestDecodeUploadedEvent(t *testing.T) {
	r := testRecorder(t)
	ts := time.Date(2026, 3, 10, 9, 40, 0, 0, time.UTC)

	entry := packEvent(t, r, "PaperUploaded",
		big.NewInt(7), "QmHash", "CS301.pdf.encrypted", "TEA-3", big.NewInt(ts.Unix()))

	event, err := r.decodeUploaded(entry)
	require.NoError(t, err)
	require.Equal(t, models.LedgerEventUpload, event.EventType)
	require.Equal(t, int64(7), event.PaperID)
	require.Equal(t, "TEA-3", event.Initiator)
	require.Equal(t, "CS301.pdf.encrypted", event.Filename)
	require.Equal(t, ts, event.Timestamp)
	require.Equal(t, uint64(42), event.BlockNumber)
}

func TestDecodeDownloadedEvent(t *testing.T) {
	r := testRecorder(t)
	ts := time.Date(2026, 3, 10, 10, 5, 0, 0, time.UTC)

	entry := packEvent(t, r, "PaperDownloaded",
		big.NewInt(7), big.NewInt(7), "CS301.pdf", "supt1", big.NewInt(ts.Unix()))

	event, err := r.decodeDownloaded(entry)
	require.NoError(t, err)
	require.Equal(t, models.LedgerEventDownload, event.EventType)
	require.Equal(t, "supt1", event.Initiator)
	require.Equal(t, "CS301.pdf", event.Filename)
	require.Equal(t, ts, event.Timestamp)
}

func TestHistoryMergesAndSortsNewestFirst(t *testing.T) {
	r := testRecorder(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	r.logs = &stubLogFilterer{logs: []types.Log{
		packEvent(t, r, "PaperUploaded",
			big.NewInt(1), "QmOne", "CS301.pdf.encrypted", "TEA-1", big.NewInt(base.Add(10*time.Minute).Unix())),
		packEvent(t, r, "PaperDownloaded",
			big.NewInt(1), big.NewInt(1), "CS301.pdf", "supt1", big.NewInt(base.Add(30*time.Minute).Unix())),
		{Topics: []common.Hash{common.HexToHash("0xdeadbeef")}},
		packEvent(t, r, "PaperUploaded",
			big.NewInt(2), "QmTwo", "MA201.pdf.encrypted", "TEA-2", big.NewInt(base.Add(20*time.Minute).Unix())),
	}}

	events, err := r.History(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)

	require.Equal(t, models.LedgerEventDownload, events[0].EventType)
	require.Equal(t, "CS301.pdf", events[0].Filename)
	require.Equal(t, models.LedgerEventUpload, events[1].EventType)
	require.Equal(t, "MA201.pdf.encrypted", events[1].Filename)
	require.Equal(t, models.LedgerEventUpload, events[2].EventType)
	require.Equal(t, "CS301.pdf.encrypted", events[2].Filename)

	for i := 1; i < len(events); i++ {
		require.False(t, events[i-1].Timestamp.Before(events[i].Timestamp))
	}
}

func TestEventTopicsAreCanonicalSignatureHashes(t *testing.T) {
	r := testRecorder(t)

	require.Equal(t,
		"PaperUploaded(uint256,string,string,string,uint256)",
		r.contractABI.Events["PaperUploaded"].Sig)
	require.Equal(t,
		"PaperDownloaded(uint256,uint256,string,string,uint256)",
		r.contractABI.Events["PaperDownloaded"].Sig)
	require.NotEqual(t,
		r.contractABI.Events["PaperUploaded"].ID,
		r.contractABI.Events["PaperDownloaded"].ID)
}
