package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/opencoe/exam-paper-api/internal/models"
	"github.com/opencoe/exam-paper-api/pkg/config"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

// logFilterer is the part of the RPC client History needs.
type logFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// durationObserver receives the confirm latency of each mined transaction.
type durationObserver interface {
	ObserveLedgerTransaction(method string, duration time.Duration)
}

// Recorder appends upload/download events to the paper registry contract and
// decodes the event log for audit history. All writes are fire-and-wait: the
// call blocks until the transaction is mined or the confirm timeout expires.
type Recorder struct {
	client         *ethclient.Client
	logs           logFilterer
	contract       *bind.BoundContract
	contractABI    abi.ABI
	address        common.Address
	signingKey     *ecdsa.PrivateKey
	chainID        *big.Int
	confirmTimeout time.Duration
	metrics        durationObserver
}

// NewRecorder dials the ledger RPC endpoint and binds the registry contract.
func NewRecorder(cfg config.LedgerConfig, metrics durationObserver) (*Recorder, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(paperRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.SigningKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse ledger signing key: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(address, parsedABI, client, client, client)

	return &Recorder{
		client:         client,
		logs:           client,
		contract:       contract,
		contractABI:    parsedABI,
		address:        address,
		signingKey:     key,
		chainID:        big.NewInt(cfg.ChainID),
		confirmTimeout: cfg.ConfirmTimeout,
		metrics:        metrics,
	}, nil
}

// Close releases the RPC connection.
func (r *Recorder) Close() {
	r.client.Close()
}

// RecordUpload submits an uploadPaper transaction and waits for confirmation.
// The ledger-assigned paper id is read back from paperCount after the mine.
func (r *Recorder) RecordUpload(ctx context.Context, contentID, filename, setterID string) (string, int64, error) {
	receipt, err := r.transact(ctx, "uploadPaper", contentID, filename, setterID)
	if err != nil {
		return "", 0, err
	}

	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "paperCount"); err != nil {
		return "", 0, appErrors.Wrap(err, appErrors.ErrLedgerRecord.Code, appErrors.ErrLedgerRecord.Status, "read ledger paper count")
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return "", 0, appErrors.Clone(appErrors.ErrLedgerRecord, "unexpected paper count type")
	}

	return receipt.TxHash.Hex(), count.Int64(), nil
}

// RecordDownload submits a recordDownload transaction and waits for
// confirmation, returning the transaction hash.
func (r *Recorder) RecordDownload(ctx context.Context, ledgerPaperID int64, filename, requesterID string) (string, error) {
	receipt, err := r.transact(ctx, "recordDownload", big.NewInt(ledgerPaperID), filename, requesterID)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// History replays the registry event log from genesis, merging upload and
// download events sorted by their on-chain timestamp, newest first.
func (r *Recorder) History(ctx context.Context) ([]models.LedgerEvent, error) {
	uploadedTopic := r.contractABI.Events["PaperUploaded"].ID
	downloadedTopic := r.contractABI.Events["PaperDownloaded"].ID

	logs, err := r.logs.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{r.address},
		Topics:    [][]common.Hash{{uploadedTopic, downloadedTopic}},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "filter ledger logs")
	}

	events := make([]models.LedgerEvent, 0, len(logs))
	for _, entry := range logs {
		if len(entry.Topics) == 0 {
			continue
		}
		var (
			event models.LedgerEvent
			err   error
		)
		switch entry.Topics[0] {
		case uploadedTopic:
			event, err = r.decodeUploaded(entry)
		case downloadedTopic:
			event, err = r.decodeDownloaded(entry)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

func (r *Recorder) transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(r.signingKey, r.chainID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLedgerRecord.Code, appErrors.ErrLedgerRecord.Status, "build transactor")
	}
	opts.Context = ctx

	tx, err := r.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLedgerRecord.Code, appErrors.ErrLedgerRecord.Status, fmt.Sprintf("submit %s transaction", method))
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.confirmTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := bind.WaitMined(waitCtx, r.client, tx)
	if r.metrics != nil {
		r.metrics.ObserveLedgerTransaction(method, time.Since(start))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLedgerRecord.Code, appErrors.ErrLedgerRecord.Status, fmt.Sprintf("confirm %s transaction", method))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, appErrors.Clone(appErrors.ErrLedgerRecord, fmt.Sprintf("%s transaction reverted", method))
	}
	return receipt, nil
}

func (r *Recorder) decodeUploaded(entry types.Log) (models.LedgerEvent, error) {
	values, err := r.contractABI.Unpack("PaperUploaded", entry.Data)
	if err != nil {
		return models.LedgerEvent{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode upload event")
	}
	return models.LedgerEvent{
		TxHash:      entry.TxHash.Hex(),
		BlockNumber: entry.BlockNumber,
		Timestamp:   eventTime(values[4]),
		EventType:   models.LedgerEventUpload,
		Initiator:   values[3].(string),
		Filename:    values[2].(string),
		PaperID:     eventPaperID(values[0]),
	}, nil
}

func (r *Recorder) decodeDownloaded(entry types.Log) (models.LedgerEvent, error) {
	values, err := r.contractABI.Unpack("PaperDownloaded", entry.Data)
	if err != nil {
		return models.LedgerEvent{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode download event")
	}
	return models.LedgerEvent{
		TxHash:      entry.TxHash.Hex(),
		BlockNumber: entry.BlockNumber,
		Timestamp:   eventTime(values[4]),
		EventType:   models.LedgerEventDownload,
		Initiator:   values[3].(string),
		Filename:    values[2].(string),
		PaperID:     eventPaperID(values[0]),
	}, nil
}
