// Package contracts holds the ABI surface of the two already-deployed
// contracts this layer talks to: the ERC-20 token and the escrow custodian.
package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const escrowABIJSON = `[
	{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"balances","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"available","type":"uint256"},{"name":"reserved","type":"uint256"},{"name":"total","type":"uint256"}]}
]`

var (
	erc20ABI  = mustParse(erc20ABIJSON)
	escrowABI = mustParse(escrowABIJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PackBalanceOf encodes an ERC-20 balanceOf call.
func PackBalanceOf(owner common.Address) ([]byte, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	return data, errors.Wrap(err, "pack balanceOf")
}

// UnpackBalanceOf decodes a balanceOf result.
func UnpackBalanceOf(out []byte) (*big.Int, error) {
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, errors.Wrap(err, "unpack balanceOf")
	}
	return vals[0].(*big.Int), nil
}

// PackAllowance encodes an ERC-20 allowance call.
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	return data, errors.Wrap(err, "pack allowance")
}

// UnpackAllowance decodes an allowance result.
func UnpackAllowance(out []byte) (*big.Int, error) {
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, errors.Wrap(err, "unpack allowance")
	}
	return vals[0].(*big.Int), nil
}

// PackApprove encodes an ERC-20 approve call for exactly amount units.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	return data, errors.Wrap(err, "pack approve")
}

// PackDeposit encodes an escrow deposit call.
func PackDeposit(amount *big.Int) ([]byte, error) {
	data, err := escrowABI.Pack("deposit", amount)
	return data, errors.Wrap(err, "pack deposit")
}

// PackWithdraw encodes an escrow withdraw call.
func PackWithdraw(amount *big.Int) ([]byte, error) {
	data, err := escrowABI.Pack("withdraw", amount)
	return data, errors.Wrap(err, "pack withdraw")
}

// PackEscrowBalances encodes an escrow balances view call.
func PackEscrowBalances(account common.Address) ([]byte, error) {
	data, err := escrowABI.Pack("balances", account)
	return data, errors.Wrap(err, "pack balances")
}

// EscrowBalances is the decoded escrow state for one account.
type EscrowBalances struct {
	Available *big.Int
	Reserved  *big.Int
	Total     *big.Int
}

// UnpackEscrowBalances decodes a balances result.
func UnpackEscrowBalances(out []byte) (*EscrowBalances, error) {
	vals, err := escrowABI.Unpack("balances", out)
	if err != nil {
		return nil, errors.Wrap(err, "unpack balances")
	}
	return &EscrowBalances{
		Available: vals[0].(*big.Int),
		Reserved:  vals[1].(*big.Int),
		Total:     vals[2].(*big.Int),
	}, nil
}
