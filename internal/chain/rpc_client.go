package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"

	"evm-liquidation-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 100 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements StateReader using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint     string
	client       *http.Client
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	backoffMult  float64
	requestID    atomic.Uint64
	limiter      *rate.Limiter
	protocol     common.Address
	from         *common.Address
	liquidateSel [4]byte
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithFrom sets the sender used for gas estimation.
func WithFrom(from common.Address) ClientOption {
	return func(c *HTTPClient) {
		c.from = &from
	}
}

// WithLiquidateSelector overrides the selector used for gas estimation.
func WithLiquidateSelector(sel [4]byte) ClientOption {
	return func(c *HTTPClient) {
		c.liquidateSel = sel
	}
}

// NewHTTPClient creates a JSON-RPC client for the node at endpoint, reading
// positions from the lending protocol at protocol.
func NewHTTPClient(endpoint string, protocol common.Address, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:     endpoint,
		client:       &http.Client{Timeout: DefaultTimeout},
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		backoffMult:  DefaultBackoffMult,
		protocol:     protocol,
		liquidateSel: DefaultLiquidateSelector,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// callMsg is the transaction object of eth_call and eth_estimateGas.
type callMsg struct {
	From *common.Address `json:"from,omitempty"`
	To   common.Address  `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	if params == nil {
		params = []interface{}{}
	}
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		// RPC errors are not retried.
		if rpcResp.Error != nil {
			return fmt.Errorf("%s: %w", method, rpcResp.Error)
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("%s: unmarshal result: %w", method, err)
			}
		}

		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// GetPosition calls getPosition(account) at the latest block.
func (c *HTTPClient) GetPosition(ctx context.Context, account common.Address) (*big.Int, *big.Int, *big.Int, error) {
	msg := callMsg{To: c.protocol, Data: EncodeGetPosition(account)}

	var ret hexutil.Bytes
	if err := c.call(ctx, "eth_call", []interface{}{msg, "latest"}, &ret); err != nil {
		return nil, nil, nil, err
	}
	return DecodePosition(ret)
}

// GasPrice returns eth_gasPrice.
func (c *HTTPClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.call(ctx, "eth_gasPrice", nil, &price); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

// EstimateLiquidationGas estimates liquidate(account, debt) against the protocol.
func (c *HTTPClient) EstimateLiquidationGas(ctx context.Context, account common.Address, debt *big.Int) (uint64, error) {
	msg := callMsg{
		From: c.from,
		To:   c.protocol,
		Data: EncodeCall(c.liquidateSel, AddressWord(account), UintWord(debt)),
	}

	var gas hexutil.Uint64
	if err := c.call(ctx, "eth_estimateGas", []interface{}{msg}, &gas); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

type blockHeader struct {
	Number  *hexutil.Big `json:"number"`
	BaseFee *hexutil.Big `json:"baseFeePerGas"`
}

// BaseFee reads baseFeePerGas of the latest block. Pre-London nodes fall back to eth_gasPrice.
func (c *HTTPClient) BaseFee(ctx context.Context) (*big.Int, error) {
	var head *blockHeader
	if err := c.call(ctx, "eth_getBlockByNumber", []interface{}{"latest", false}, &head); err != nil {
		return nil, err
	}
	if head == nil || head.BaseFee == nil {
		return c.GasPrice(ctx)
	}
	return head.BaseFee.ToInt(), nil
}

// ChainID returns eth_chainId.
func (c *HTTPClient) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := c.call(ctx, "eth_chainId", nil, &id); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// BlockNumber returns eth_blockNumber.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", nil, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

var _ StateReader = (*HTTPClient)(nil)
