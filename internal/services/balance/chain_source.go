package balance

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/contracts"
)

// ContractSource reads token and escrow balances through the connector.
type ContractSource struct {
	connector     clients.Connector
	tokenAddr     common.Address
	escrowAddr    common.Address
	tokenDecimals int32
}

// NewContractSource creates a ChainSource over the connector.
func NewContractSource(connector clients.Connector, tokenAddr, escrowAddr common.Address, tokenDecimals int32) *ContractSource {
	return &ContractSource{
		connector:     connector,
		tokenAddr:     tokenAddr,
		escrowAddr:    escrowAddr,
		tokenDecimals: tokenDecimals,
	}
}

// TokenBalance reads the wallet's ERC-20 balance in display units.
func (s *ContractSource) TokenBalance(ctx context.Context) (decimal.Decimal, error) {
	acc := s.connector.GetAccount()

	data, err := contracts.PackBalanceOf(acc.Address)
	if err != nil {
		return decimal.Zero, err
	}

	out, err := s.connector.ReadContract(ctx, clients.ContractCall{
		From: acc.Address,
		To:   s.tokenAddr,
		Data: data,
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read token balance")
	}

	units, err := contracts.UnpackBalanceOf(out)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(units, -s.tokenDecimals), nil
}

// EscrowBalances reads the escrow contract state in display units.
func (s *ContractSource) EscrowBalances(ctx context.Context) (EscrowView, error) {
	acc := s.connector.GetAccount()

	data, err := contracts.PackEscrowBalances(acc.Address)
	if err != nil {
		return EscrowView{}, err
	}

	out, err := s.connector.ReadContract(ctx, clients.ContractCall{
		From: acc.Address,
		To:   s.escrowAddr,
		Data: data,
	})
	if err != nil {
		return EscrowView{}, errors.Wrap(err, "read escrow balances")
	}

	balances, err := contracts.UnpackEscrowBalances(out)
	if err != nil {
		return EscrowView{}, err
	}

	return EscrowView{
		Available: decimal.NewFromBigInt(balances.Available, -s.tokenDecimals),
		Reserved:  decimal.NewFromBigInt(balances.Reserved, -s.tokenDecimals),
		Total:     decimal.NewFromBigInt(balances.Total, -s.tokenDecimals),
	}, nil
}
