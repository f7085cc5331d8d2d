package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/subscription-escrow/escrowdex/lens"
)

type mockEthClient struct {
	mock.Mock
}

func (m *mockEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, q)
	if logs := args.Get(0); logs != nil {
		return logs.([]types.Log), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(ctx, number)
	if h := args.Get(0); h != nil {
		return h.(*types.Header), args.Error(1)
	}
	return nil, args.Error(1)
}

var (
	contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	topicA   = common.HexToHash("0xaa")
	topicB   = common.HexToHash("0xbb")
)

func height(n uint64) interface{} {
	return mock.MatchedBy(func(b *big.Int) bool { return b != nil && b.Uint64() == n })
}

func testLog(block uint64, index uint, removed bool) types.Log {
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{topicA},
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*100 + uint64(index))),
		Index:       index,
		Removed:     removed,
	}
}

func TestLogsOrderedWithTimestamps(t *testing.T) {
	ctx := context.Background()
	api := new(mockEthClient)

	api.On("FilterLogs", mock.Anything, mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Uint64() == 10 && q.ToBlock.Uint64() == 20 &&
			len(q.Addresses) == 1 && q.Addresses[0] == contract &&
			len(q.Topics) == 1 && len(q.Topics[0]) == 2
	})).Return([]types.Log{
		testLog(12, 4, false),
		testLog(11, 9, false),
		testLog(12, 1, false),
		testLog(11, 2, true),
	}, nil).Once()
	api.On("HeaderByNumber", mock.Anything, height(11)).Return(&types.Header{Time: 1100}, nil).Once()
	api.On("HeaderByNumber", mock.Anything, height(12)).Return(&types.Header{Time: 1200}, nil).Once()

	src, err := NewLogSource(api, contract, []common.Hash{topicA, topicB}, WithHeaderWorkers(2))
	require.NoError(t, err)

	logs, err := src.Logs(ctx, 10, 20)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	type pos struct {
		block uint64
		index uint
		time  uint64
	}
	var got []pos
	for _, lg := range logs {
		got = append(got, pos{lg.BlockNumber, lg.Index, lg.BlockTime})
	}
	assert.Equal(t, []pos{{11, 9, 1100}, {12, 1, 1200}, {12, 4, 1200}}, got)
	api.AssertExpectations(t)
}

func TestLogsCachesBlockTimes(t *testing.T) {
	ctx := context.Background()
	api := new(mockEthClient)

	api.On("FilterLogs", mock.Anything, mock.Anything).Return([]types.Log{testLog(5, 0, false)}, nil).Twice()
	api.On("HeaderByNumber", mock.Anything, height(5)).Return(&types.Header{Time: 500}, nil).Once()

	src, err := NewLogSource(api, contract, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		logs, err := src.Logs(ctx, 5, 5)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.EqualValues(t, 500, logs[0].BlockTime)
	}
	api.AssertExpectations(t)
	api.AssertNumberOfCalls(t, "HeaderByNumber", 1)
}

func TestLogsWithoutTopicsDoesNotFilterTopics(t *testing.T) {
	api := new(mockEthClient)
	api.On("FilterLogs", mock.Anything, mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.Topics == nil
	})).Return([]types.Log{}, nil).Once()

	src, err := NewLogSource(api, contract, nil)
	require.NoError(t, err)

	logs, err := src.Logs(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Empty(t, logs)
	api.AssertNotCalled(t, "HeaderByNumber", mock.Anything, mock.Anything)
}

func TestLogsHeaderErrors(t *testing.T) {
	api := new(mockEthClient)
	api.On("FilterLogs", mock.Anything, mock.Anything).Return([]types.Log{testLog(7, 0, false), testLog(8, 0, false)}, nil)
	api.On("HeaderByNumber", mock.Anything, height(7)).Return(nil, errors.New("boom"))
	api.On("HeaderByNumber", mock.Anything, height(8)).Return(nil, nil)

	src, err := NewLogSource(api, contract, nil)
	require.NoError(t, err)

	_, err = src.Logs(context.Background(), 7, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header 7: boom")
	assert.Contains(t, err.Error(), "header 8: not found")
}

func TestLogsInvalidRange(t *testing.T) {
	src, err := NewLogSource(new(mockEthClient), contract, nil)
	require.NoError(t, err)

	_, err = src.Logs(context.Background(), 9, 3)
	require.Error(t, err)
}

func TestLogsFilterError(t *testing.T) {
	api := new(mockEthClient)
	api.On("FilterLogs", mock.Anything, mock.Anything).Return(nil, errors.New("limit exceeded"))

	src, err := NewLogSource(api, contract, nil)
	require.NoError(t, err)

	_, err = src.Logs(context.Background(), 1, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit exceeded")
}

func TestFailoverClientMovesToNextEndpoint(t *testing.T) {
	ctx := context.Background()
	bad := new(mockEthClient)
	good := new(mockEthClient)
	bad.On("BlockNumber", mock.Anything).Return(uint64(0), errors.New("connection refused"))
	good.On("BlockNumber", mock.Anything).Return(uint64(42), nil)

	fc := NewFailoverClient([]lens.API{bad, good}, []string{"http://bad", "http://good"}, 0)

	n, err := fc.BlockNumber(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
	bad.AssertNumberOfCalls(t, "BlockNumber", 1)
	good.AssertNumberOfCalls(t, "BlockNumber", 1)
}

func TestFailoverClientAllEndpointsFail(t *testing.T) {
	a := new(mockEthClient)
	b := new(mockEthClient)
	a.On("HeaderByNumber", mock.Anything, mock.Anything).Return(nil, errors.New("a down"))
	b.On("HeaderByNumber", mock.Anything, mock.Anything).Return(nil, errors.New("b down"))

	fc := NewFailoverClient([]lens.API{a, b}, nil, 0)

	_, err := fc.HeaderByNumber(context.Background(), big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after trying 2 endpoints")
}

func TestFailoverClientWithoutClients(t *testing.T) {
	fc := NewFailoverClient(nil, nil, 0)
	_, err := fc.FilterLogs(context.Background(), ethereum.FilterQuery{})
	require.Error(t, err)
}

func TestDialWithoutEndpoints(t *testing.T) {
	_, err := Dial(context.Background(), nil, 0)
	require.Error(t, err)
}
