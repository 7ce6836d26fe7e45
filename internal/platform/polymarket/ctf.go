package polymarket

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Polygon mainnet contract addresses.
var (
	DefaultExchangeAddress   = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	DefaultCTFAddress        = common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")
	DefaultCollateralAddress = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
)

const ctfABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"collateralToken","type":"address"},
    {"internalType":"bytes32","name":"parentCollectionId","type":"bytes32"},
    {"internalType":"bytes32","name":"conditionId","type":"bytes32"},
    {"internalType":"uint256[]","name":"indexSets","type":"uint256[]"}
  ],"name":"redeemPositions","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// binaryIndexSets covers both outcome slots of a binary condition.
var binaryIndexSets = []*big.Int{big.NewInt(1), big.NewInt(2)}

// Redeemer burns a resolved condition's outcome tokens for collateral.
type Redeemer interface {
	RedeemCondition(ctx context.Context, conditionID common.Hash) (common.Hash, error)
}

// CTFConfig configures a CTFRedeemer.
type CTFConfig struct {
	RPCURL      string
	ChainID     int64
	CTF         common.Address
	Collateral  common.Address
	WaitTimeout time.Duration
}

// CTFRedeemer calls redeemPositions on the Conditional Tokens contract
// from an EOA wallet.
type CTFRedeemer struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	cfg      CTFConfig
	logger   *slog.Logger
}

var _ Redeemer = (*CTFRedeemer)(nil)

// DialCTF connects to the RPC endpoint and binds the CTF contract.
func DialCTF(ctx context.Context, cfg CTFConfig, key *ecdsa.PrivateKey, logger *slog.Logger) (*CTFRedeemer, error) {
	if cfg.CTF == (common.Address{}) {
		cfg.CTF = DefaultCTFAddress
	}
	if cfg.Collateral == (common.Address{}) {
		cfg.Collateral = DefaultCollateralAddress
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 2 * time.Minute
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("polymarket/ctf: dial rpc: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(ctfABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("polymarket/ctf: parse abi: %w", err)
	}

	return &CTFRedeemer{
		client:   client,
		contract: bind.NewBoundContract(cfg.CTF, parsed, client, client, client),
		key:      key,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "ctf_redeemer")),
	}, nil
}

// RedeemCondition sends redeemPositions for both outcome slots and waits
// for the receipt. It returns the transaction hash.
func (r *CTFRedeemer) RedeemCondition(ctx context.Context, conditionID common.Hash) (common.Hash, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(r.key, big.NewInt(r.cfg.ChainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("polymarket/ctf: transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := r.contract.Transact(opts, "redeemPositions",
		r.cfg.Collateral, [32]byte{}, conditionID, binaryIndexSets)
	if err != nil {
		return common.Hash{}, fmt.Errorf("polymarket/ctf: redeemPositions %s: %w", conditionID.Hex(), err)
	}
	r.logger.InfoContext(ctx, "redeem submitted",
		slog.String("condition_id", conditionID.Hex()),
		slog.String("tx", tx.Hash().Hex()),
	)

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.WaitTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, r.client, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("polymarket/ctf: wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("polymarket/ctf: redeem tx %s reverted", tx.Hash().Hex())
	}
	return tx.Hash(), nil
}

// Close releases the RPC connection.
func (r *CTFRedeemer) Close() {
	r.client.Close()
}
