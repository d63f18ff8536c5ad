// Package types defines the enumerations shared across the ledger engine:
// AccountType (with its debit/credit sign class), EntryType and LedgerType.
package types

// AccountType enumerates the kinds of account a chart-of-accounts node can be.
type AccountType string

const (
	Asset            AccountType = "ASSET"
	Liability        AccountType = "LIABILITY"
	Equity           AccountType = "EQUITY"
	DebitBalance     AccountType = "DEBIT_BALANCE"
	CreditBalance    AccountType = "CREDIT_BALANCE"
	ContraAsset      AccountType = "CONTRA_ASSET"
	ContraLiability  AccountType = "CONTRA_LIABILITY"
	ContraEquity     AccountType = "CONTRA_EQUITY"
	NostroAsset      AccountType = "NOSTRO_ASSET"
	VostroLiability  AccountType = "VOSTRO_LIABILITY"
)

// debitPositive is the set of account types whose natural balance grows with
// debits rather than credits.
var debitPositive = map[AccountType]bool{
	Asset:           true,
	DebitBalance:    true,
	ContraLiability: true,
	ContraEquity:    true,
	NostroAsset:     true,
}

// IsDebitPositive reports whether a's balance is computed as debit-minus-credit.
// The complement (credit-positive) is LIABILITY, EQUITY, CREDIT_BALANCE,
// CONTRA_ASSET and VOSTRO_LIABILITY.
func (a AccountType) IsDebitPositive() bool {
	return debitPositive[a]
}

// Valid reports whether a is one of the ten known account types.
func (a AccountType) Valid() bool {
	switch a {
	case Asset, Liability, Equity, DebitBalance, CreditBalance,
		ContraAsset, ContraLiability, ContraEquity, NostroAsset, VostroLiability:
		return true
	default:
		return false
	}
}

// EntryType is the direction of a single-sided posting.
type EntryType string

const (
	Credit EntryType = "CREDIT"
	Debit  EntryType = "DEBIT"
)

// Code returns the single-character disk code used in packed maps
// (Account.locking_scripts, TxRollup.balances).
func (e EntryType) Code() byte {
	if e == Credit {
		return 'c'
	}
	return 'd'
}

// EntryTypeFromCode is the inverse of Code.
func EntryTypeFromCode(c byte) (EntryType, bool) {
	switch c {
	case 'c':
		return Credit, true
	case 'd':
		return Debit, true
	default:
		return "", false
	}
}

// Valid reports whether e is CREDIT or DEBIT.
func (e EntryType) Valid() bool {
	return e == Credit || e == Debit
}

// LedgerType enumerates the kinds of ledger a chart of accounts can scope to.
type LedgerType string

const (
	LedgerGeneral       LedgerType = "GENERAL"
	LedgerCorrespondent LedgerType = "CORRESPONDENT"
)
