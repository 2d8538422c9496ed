package refill

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/safe-refill/internal/alert"
)

var (
	testToken     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testRecipient = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fakeReader struct {
	mu            sync.Mutex
	tokenBalance  *big.Int
	nativeBalance *big.Int
	tokenErrs     []error
	nativeErrs    []error
	tokenCalls    int
	nativeCalls   int
}

func (f *fakeReader) TokenBalance(_ context.Context, _, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	if len(f.tokenErrs) > 0 {
		err := f.tokenErrs[0]
		f.tokenErrs = f.tokenErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.tokenBalance, nil
}

func (f *fakeReader) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nativeCalls++
	if len(f.nativeErrs) > 0 {
		err := f.nativeErrs[0]
		f.nativeErrs = f.nativeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.nativeBalance, nil
}

type fakeAllowance struct {
	simulateErr  error
	executeErr   error
	revert       bool
	simulates    int
	executes     int
	transferArgs []common.Address
}

func (f *fakeAllowance) TransferCalldata(token, to common.Address, _ *big.Int) ([]byte, error) {
	f.transferArgs = append(f.transferArgs, token, to)
	return append([]byte{0x4b, 0xd0, 0x88, 0x79}, token.Bytes()...), nil
}

func (f *fakeAllowance) Simulate(context.Context, []byte) error {
	f.simulates++
	return f.simulateErr
}

func (f *fakeAllowance) ExecuteTransfer(context.Context, []byte) (*types.Receipt, error) {
	f.executes++
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: common.HexToHash("0xfeed"),
	}
	if f.revert {
		receipt.Status = types.ReceiptStatusFailed
	}
	return receipt, nil
}

type notification struct {
	severity alert.Severity
	text     string
}

type fakeSink struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeSink) Notify(_ context.Context, severity alert.Severity, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{severity: severity, text: text})
}

// waitRecorder collects the waits the retry loops would perform while
// the recording backoffs skip the actual sleeps.
type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *waitRecorder) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
}

type recordingBackOff struct {
	inner    backoff.BackOff
	recorder *waitRecorder
}

func (r *recordingBackOff) NextBackOff() time.Duration {
	r.recorder.add(r.inner.NextBackOff())
	return 0
}

func (r *recordingBackOff) Reset() { r.inner.Reset() }

func newTestService(reader *fakeReader, allowanceFake *fakeAllowance, sink *fakeSink) (*service, *waitRecorder) {
	svc := NewService(reader, allowanceFake, sink, testRecipient,
		Asset{Name: "token", Token: testToken, LowThreshold: big.NewInt(20), RefillAmount: big.NewInt(30)},
		Asset{Name: "native", LowThreshold: big.NewInt(10), RefillAmount: big.NewInt(15)},
	).(*service)

	recorder := &waitRecorder{}
	svc.newBackOff = func() backoff.BackOff {
		return &recordingBackOff{inner: newReadBackOff(), recorder: recorder}
	}

	return svc, recorder
}

func TestRunSkipsWhenBalancesAboveThreshold(t *testing.T) {
	reader := &fakeReader{tokenBalance: big.NewInt(25), nativeBalance: big.NewInt(20)}
	allowanceFake := &fakeAllowance{}
	sink := &fakeSink{}
	svc, _ := newTestService(reader, allowanceFake, sink)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Attempts, 2)
	assert.Equal(t, OutcomeSkipped, summary.Attempts[0].Outcome)
	assert.Equal(t, OutcomeSkipped, summary.Attempts[1].Outcome)
	assert.False(t, summary.HasErrors())

	assert.Zero(t, allowanceFake.simulates, "no writes expected when balances are healthy")
	assert.Zero(t, allowanceFake.executes)
	assert.Empty(t, sink.sent)
}

func TestRunRefillsTokenBelowThreshold(t *testing.T) {
	reader := &fakeReader{tokenBalance: big.NewInt(5), nativeBalance: big.NewInt(20)}
	allowanceFake := &fakeAllowance{}
	sink := &fakeSink{}
	svc, _ := newTestService(reader, allowanceFake, sink)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Attempts, 2)
	assert.Equal(t, OutcomeOK, summary.Attempts[0].Outcome)
	assert.Equal(t, common.HexToHash("0xfeed"), summary.Attempts[0].TxHash)
	assert.Equal(t, OutcomeSkipped, summary.Attempts[1].Outcome)
	assert.False(t, summary.HasErrors())

	assert.Equal(t, 1, allowanceFake.simulates)
	assert.Equal(t, 1, allowanceFake.executes)
	require.Len(t, allowanceFake.transferArgs, 2)
	assert.Equal(t, testToken, allowanceFake.transferArgs[0])
	assert.Equal(t, testRecipient, allowanceFake.transferArgs[1])
	assert.Empty(t, sink.sent)
}

func TestReadRetriesTransientFailures(t *testing.T) {
	reader := &fakeReader{
		tokenBalance:  big.NewInt(25),
		nativeBalance: big.NewInt(20),
		tokenErrs: []error{
			errors.New("read ECONNRESET: connection reset by peer"),
			errors.New("request timeout after 10s"),
			nil,
		},
	}
	svc, recorder := newTestService(reader, &fakeAllowance{}, &fakeSink{})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, summary.Attempts[0].Outcome)

	assert.Equal(t, 3, reader.tokenCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, recorder.waits)
}

func TestReadAbortsAfterExhaustedRetries(t *testing.T) {
	reader := &fakeReader{
		tokenBalance:  big.NewInt(25),
		nativeBalance: big.NewInt(20),
		tokenErrs: []error{
			errors.New("network unreachable"),
			errors.New("network unreachable"),
			errors.New("network unreachable"),
			errors.New("network unreachable"),
		},
	}
	svc, _ := newTestService(reader, &fakeAllowance{}, &fakeSink{})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, reader.tokenCalls, "reads stop after three attempts")
}

func TestReadDoesNotRetryNonTransientFailures(t *testing.T) {
	reader := &fakeReader{
		tokenBalance:  big.NewInt(25),
		nativeBalance: big.NewInt(20),
		nativeErrs:    []error{errors.New("execution reverted")},
	}
	svc, _ := newTestService(reader, &fakeAllowance{}, &fakeSink{})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, reader.nativeCalls)
}

func TestMisconfigurationShortCircuitsNativePath(t *testing.T) {
	reader := &fakeReader{tokenBalance: big.NewInt(5), nativeBalance: big.NewInt(2)}
	allowanceFake := &fakeAllowance{
		simulateErr: errors.New("execution reverted: GS104 module not enabled"),
	}
	sink := &fakeSink{}
	svc, _ := newTestService(reader, allowanceFake, sink)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	// The native attempt must not appear at all: same root cause, same
	// guaranteed failure.
	require.Len(t, summary.Attempts, 1)
	assert.Equal(t, OutcomeFatalMisconfiguration, summary.Attempts[0].Outcome)
	assert.True(t, summary.HasErrors())

	assert.Zero(t, allowanceFake.executes, "no broadcast after a failed simulation")
	require.Len(t, sink.sent, 1)
	assert.Equal(t, alert.SeverityCritical, sink.sent[0].severity)
}

func TestNativeMisconfigurationDoesNotAffectTokenPath(t *testing.T) {
	// Token path runs first and is already done; only the fungible
	// path's misconfiguration short-circuits the run.
	reader := &fakeReader{tokenBalance: big.NewInt(25), nativeBalance: big.NewInt(2)}
	allowanceFake := &fakeAllowance{
		simulateErr: errors.New("delegate not registered"),
	}
	sink := &fakeSink{}
	svc, _ := newTestService(reader, allowanceFake, sink)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Attempts, 2)
	assert.Equal(t, OutcomeSkipped, summary.Attempts[0].Outcome)
	assert.Equal(t, OutcomeFatalMisconfiguration, summary.Attempts[1].Outcome)
}

func TestAllowanceExhaustionIsLoggedNotAlerted(t *testing.T) {
	reader := &fakeReader{tokenBalance: big.NewInt(5), nativeBalance: big.NewInt(20)}
	allowanceFake := &fakeAllowance{
		simulateErr: errors.New("transfer amount above spend limit"),
	}
	sink := &fakeSink{}
	svc, _ := newTestService(reader, allowanceFake, sink)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Attempts, 2)
	assert.Equal(t, OutcomeTransientFailure, summary.Attempts[0].Outcome)
	assert.Equal(t, OutcomeSkipped, summary.Attempts[1].Outcome)
	assert.True(t, summary.HasErrors())

	assert.Empty(t, sink.sent, "exhaustion is expected steady state")
}

func TestUnclassifiedFailureRaisesWarning(t *testing.T) {
	reader := &fakeReader{tokenBalance: big.NewInt(5), nativeBalance: big.NewInt(20)}
	allowanceFake := &fakeAllowance{
		executeErr: errors.New("nonce too low"),
	}
	sink := &fakeSink{}
	svc, _ := newTestService(reader, allowanceFake, sink)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransientFailure, summary.Attempts[0].Outcome)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, alert.SeverityWarning, sink.sent[0].severity)

	// The run continues to the native asset.
	require.Len(t, summary.Attempts, 2)
	assert.Equal(t, OutcomeSkipped, summary.Attempts[1].Outcome)
}

func TestOnChainRevertIsAlwaysAlerted(t *testing.T) {
	reader := &fakeReader{tokenBalance: big.NewInt(5), nativeBalance: big.NewInt(20)}
	allowanceFake := &fakeAllowance{revert: true}
	sink := &fakeSink{}
	svc, _ := newTestService(reader, allowanceFake, sink)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransientFailure, summary.Attempts[0].Outcome)
	assert.Equal(t, common.HexToHash("0xfeed"), summary.Attempts[0].TxHash)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, alert.SeverityWarning, sink.sent[0].severity)
	assert.True(t, summary.HasErrors())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		class   failureClass
	}{
		{"GS104 module not enabled", classMisconfiguration},
		{"delegate not registered for this safe", classMisconfiguration},
		{"Unauthorized delegate", classMisconfiguration},
		{"amount above spend limit", classExhaustion},
		{"daily allowance exceeded", classExhaustion},
		{"read tcp: connection reset by peer", classTransient},
		{"context deadline exceeded (timeout)", classTransient},
		{"fetch failed", classTransient},
		{"execution reverted", classOther},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.class, classify(errors.New(tt.message)))
		})
	}
	assert.Equal(t, classOther, classify(nil))
}
