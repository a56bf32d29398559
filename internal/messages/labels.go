package messages

import (
	"strings"

	"crmbot/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	unassigned = "Не назначен"
	unknown    = "Неизвестно"

	dateTimeLayout = "02.01.2006 15:04"
	dateLayout     = "02.01.2006"
	timeLayout     = "15:04"
)

type priorityLabel struct {
	icon, text string
}

var priorityLabels = map[domain.TaskPriority]priorityLabel{
	domain.PriorityHigh:   {"🔴", "Высокий"},
	domain.PriorityMedium: {"🟠", "Средний"},
	domain.PriorityLow:    {"🟢", "Низкий"},
}

func priority(p domain.TaskPriority) priorityLabel {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return priorityLabels[domain.PriorityMedium]
}

// PriorityIcon returns the colored marker for p (MEDIUM's for unknown values).
func PriorityIcon(p domain.TaskPriority) string { return priority(p).icon }

var taskStatusLabels = map[domain.TaskStatus]string{
	domain.TaskNew:        "Новая",
	domain.TaskInProgress: "В работе",
	domain.TaskCompleted:  "Завершена",
	domain.TaskCancelled:  "Отменена",
	domain.TaskPostponed:  "Отложена",
}

var dealStatusLabels = map[domain.DealStatus]string{
	domain.DealNew:         "Новая",
	domain.DealInProgress:  "В работе",
	domain.DealNegotiation: "Переговоры",
	domain.DealWon:         "Выиграна",
	domain.DealLost:        "Проиграна",
}

func taskStatus(s domain.TaskStatus) string {
	if l, ok := taskStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

func dealStatus(s domain.DealStatus) string {
	if l, ok := dealStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// HoursWord returns the Russian form of "hour" agreeing with n.
func HoursWord(n int) string {
	if n < 0 {
		n = -n
	}
	n10, n100 := n%10, n%100
	switch {
	case n10 == 1 && n100 != 11:
		return "час"
	case n10 >= 2 && n10 <= 4 && (n100 < 12 || n100 > 14):
		return "часа"
	default:
		return "часов"
	}
}

// FormatAmount renders a money amount with two decimals, grouped thousands and currency.
func FormatAmount(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	if c := strings.TrimSpace(currency); c != "" {
		out += " " + c
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
