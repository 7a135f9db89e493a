package gasstation

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitstop/gas-station/pkg/networks"
)

// ChainClient is the RPC surface the treasury needs per network. Satisfied by
// *ethclient.Client.
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

const erc20ABIJSON = `[{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

const ethTransferGasLimit = 21000

const defaultReceiptPollInterval = 2 * time.Second

// TransferReceipt is the confirmed result of an ETH transfer.
type TransferReceipt struct {
	Hash   string
	Status string
}

// Treasury is the gas station's hot wallet: one signing key used across all
// supported networks.
type Treasury struct {
	key     *ecdsa.PrivateKey
	address common.Address
	clients map[string]ChainClient
	logger  *zap.Logger
	erc20   abi.ABI

	receiptPollInterval time.Duration
}

// NewTreasury creates a treasury from a hex-encoded private key and a
// per-network RPC client map.
func NewTreasury(hexKey string, clients map[string]ChainClient, logger *zap.Logger) (*Treasury, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse treasury key: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	return &Treasury{
		key:                 key,
		address:             crypto.PubkeyToAddress(key.PublicKey),
		clients:             clients,
		logger:              logger,
		erc20:               erc20,
		receiptPollInterval: defaultReceiptPollInterval,
	}, nil
}

// Address returns the treasury's wallet address, which doubles as the x402
// payee address.
func (t *Treasury) Address() common.Address {
	return t.address
}

// SendETH sends amountWei to the recipient on the given network and waits for
// the transaction to be mined.
func (t *Treasury) SendETH(ctx context.Context, network string, to common.Address, amountWei *big.Int) (*TransferReceipt, error) {
	client, entry, err := t.clientFor(network)
	if err != nil {
		return nil, err
	}

	// Operation ids correlate the submit and receipt log lines.
	logger := t.logger.With(
		zap.String("opID", uuid.NewString()),
		zap.String("network", network),
		zap.String("to", to.Hex()))

	nonce, err := client.PendingNonceAt(ctx, t.address)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch gas tip: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}

	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	chainID := big.NewInt(entry.ChainID)

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       ethTransferGasLimit,
		To:        &to,
		Value:     amountWei,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	logger.Info("eth transfer submitted", zap.String("hash", signed.Hash().Hex()))

	receipt, err := t.waitReceipt(ctx, client, signed.Hash())
	if err != nil {
		return nil, err
	}

	status := "reverted"
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		status = "success"
	}
	logger.Info("eth transfer mined", zap.String("hash", signed.Hash().Hex()), zap.String("status", status))

	return &TransferReceipt{Hash: signed.Hash().Hex(), Status: status}, nil
}

// ETHBalance returns the treasury's native balance on the given network.
func (t *Treasury) ETHBalance(ctx context.Context, network string) (*big.Int, error) {
	client, _, err := t.clientFor(network)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, t.address, nil)
}

// USDCBalance returns the treasury's USDC balance on the given network, in
// atomic units.
func (t *Treasury) USDCBalance(ctx context.Context, network string) (*big.Int, error) {
	client, entry, err := t.clientFor(network)
	if err != nil {
		return nil, err
	}

	data, err := t.erc20.Pack("balanceOf", t.address)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	usdc := common.HexToAddress(entry.USDCAddress)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &usdc, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	unpacked, err := t.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", unpacked[0])
	}
	return balance, nil
}

func (t *Treasury) clientFor(network string) (ChainClient, networks.Network, error) {
	entry, err := networks.Get(network)
	if err != nil {
		return nil, networks.Network{}, err
	}
	client, ok := t.clients[network]
	if !ok {
		return nil, networks.Network{}, fmt.Errorf("no rpc client for network %q", network)
	}
	return client, entry, nil
}

func (t *Treasury) waitReceipt(ctx context.Context, client ChainClient, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(t.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
