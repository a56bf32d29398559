package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DealStatus string

const (
	DealNew         DealStatus = "NEW"
	DealInProgress  DealStatus = "IN_PROGRESS"
	DealNegotiation DealStatus = "NEGOTIATION"
	DealWon         DealStatus = "WON"
	DealLost        DealStatus = "LOST"
)

// TerminalDealStatuses are statuses after which a deal no longer changes.
var TerminalDealStatuses = []DealStatus{DealWon, DealLost}

func (s DealStatus) Terminal() bool {
	for _, t := range TerminalDealStatuses {
		if s == t {
			return true
		}
	}
	return false
}

type Deal struct {
	ID       int64
	Title    string
	Amount   decimal.Decimal
	Currency string
	Status   DealStatus

	Client  *ClientRef
	Manager *UserRef

	EstimatedClosingDate *time.Time
}

type Client struct {
	ID        int64
	Name      string
	Company   string
	Email     string
	Phone     string
	Manager   *UserRef
	CreatedAt time.Time
}

type User struct {
	ID   int64
	Name string
}
