package messages

import (
	"fmt"
	"strconv"
	"time"

	"crmbot/internal/domain"
	"crmbot/pkg/tgui"
)

const (
	summaryTodayLimit   = 10
	summaryOverdueLimit = 5
	descriptionLimit    = 300
)

// Formatter renders notification texts. Times are shown in Location
// (time.Local when nil).
type Formatter struct {
	Location *time.Location
}

func (f Formatter) loc() *time.Location {
	if f.Location == nil {
		return time.Local
	}
	return f.Location
}

func (f Formatter) fmtTime(t time.Time, layout string) string {
	return t.In(f.loc()).Format(layout)
}

func field(label string, value string) []tgui.H {
	return []tgui.H{tgui.B(label + ":"), tgui.Raw(" "), tgui.Esc(value)}
}

// taskBody writes the shared task lines: title, due date, assignee, priority and
// the optional client and deal references.
func (f Formatter) taskBody(b *tgui.Builder, t domain.Task) {
	p := priority(t.Priority)
	b.Line(tgui.Raw("📋 "), tgui.B("Задача:"), tgui.Raw(" "), tgui.Esc(t.Title))
	b.Line(tgui.Raw("📅 "), tgui.B("Срок:"), tgui.Raw(" "), tgui.Esc(f.fmtTime(t.DueDate, dateTimeLayout)))
	b.Line(tgui.Raw("👤 "), tgui.B("Исполнитель:"), tgui.Raw(" "), tgui.Esc(orDefault(t.AssigneeName(), unassigned)))
	b.Line(tgui.Raw(p.icon+" "), tgui.B("Приоритет:"), tgui.Raw(" "), tgui.Esc(p.text))
	if t.Client != nil {
		b.Line(tgui.Raw("🏢 "), tgui.B("Клиент:"), tgui.Raw(" "), tgui.Esc(orDefault(t.Client.Name, unknown)))
	}
	if t.Deal != nil {
		b.Line(tgui.Raw("💼 "), tgui.B("Сделка:"), tgui.Raw(" "), tgui.Esc(orDefault(t.Deal.Title, unknown)))
	}
}

// DeadlineReminder renders the reminder for a task due in hours.
func (f Formatter) DeadlineReminder(t domain.Task, hours int) string {
	var b tgui.Builder
	b.Line(tgui.Raw("⏰ "), tgui.B("Напоминание о сроке задачи"))
	b.Blank()
	f.taskBody(&b, t)
	b.Blank()
	b.Line(tgui.Raw("⏳ До срока осталось: "), tgui.B(strconv.Itoa(hours)+" "+HoursWord(hours)))
	return b.String()
}

// NewTask renders the "task created/assigned" notification.
func (f Formatter) NewTask(t domain.Task) string {
	var b tgui.Builder
	b.Line(tgui.Raw("📝 "), tgui.B("Новая задача"))
	b.Blank()
	f.taskBody(&b, t)
	if t.Description != "" {
		b.Blank()
		b.Line(tgui.I(tgui.TruncRunes(t.Description, descriptionLimit)))
	}
	return b.String()
}

// Digest is the input of the daily summary. OverdueTotal counts all overdue
// tasks, of which Overdue holds the first few.
type Digest struct {
	Date         time.Time
	Today        []domain.Task
	Overdue      []domain.Task
	OverdueTotal int
}

func moreLine(n int) tgui.H {
	return tgui.I(fmt.Sprintf("…и ещё +%d", n))
}

// DailySummary renders the digest of today's and overdue tasks.
func (f Formatter) DailySummary(d Digest) string {
	var b tgui.Builder
	b.Line(tgui.Raw("📊 "), tgui.B("Сводка задач на "+f.fmtTime(d.Date, dateLayout)))
	b.Blank()

	if len(d.Today) == 0 {
		b.Line(tgui.Raw("✅ На сегодня задач нет"))
	} else {
		b.Line(tgui.Raw("📅 "), tgui.B(fmt.Sprintf("Задачи на сегодня (%d):", len(d.Today))))
		for i, t := range d.Today {
			if i == summaryTodayLimit {
				b.Line(moreLine(len(d.Today) - summaryTodayLimit))
				break
			}
			b.Line(f.summaryLine(t, timeLayout))
		}
	}

	total := max(d.OverdueTotal, len(d.Overdue))
	if total > 0 {
		b.Blank()
		b.Line(tgui.Raw("⚠️ "), tgui.B(fmt.Sprintf("Просроченные задачи (%d):", total)))
		shown := d.Overdue
		if len(shown) > summaryOverdueLimit {
			shown = shown[:summaryOverdueLimit]
		}
		for _, t := range shown {
			b.Line(f.summaryLine(t, dateTimeLayout))
		}
		if rest := total - len(shown); rest > 0 {
			b.Line(moreLine(rest))
		}
	}
	return b.String()
}

func (f Formatter) summaryLine(t domain.Task, layout string) tgui.H {
	who := orDefault(t.AssigneeName(), unassigned)
	if t.Client != nil && t.Client.Name != "" {
		who += ", " + t.Client.Name
	}
	return tgui.JoinH(" ",
		tgui.Raw(PriorityIcon(t.Priority)),
		tgui.Esc(f.fmtTime(t.DueDate, layout)),
		tgui.B(t.Title),
		tgui.Esc("("+who+")"),
	)
}

// NewClient renders the "client created" notification.
func (f Formatter) NewClient(c domain.Client) string {
	var b tgui.Builder
	b.Line(tgui.Raw("👤 "), tgui.B("Новый клиент"))
	b.Blank()
	b.Line(field("Имя", c.Name)...)
	b.Line(field("Компания", orDefault(c.Company, unknown))...)
	if c.Email != "" {
		b.Line(field("Email", c.Email)...)
	}
	if c.Phone != "" {
		b.Line(field("Телефон", c.Phone)...)
	}
	b.Line(field("Менеджер", managerName(c.Manager))...)
	if !c.CreatedAt.IsZero() {
		b.Line(field("Создан", f.fmtTime(c.CreatedAt, dateTimeLayout))...)
	}
	return b.String()
}

// NewDeal renders the "deal created" notification.
func (f Formatter) NewDeal(d domain.Deal) string {
	var b tgui.Builder
	b.Line(tgui.Raw("💼 "), tgui.B("Новая сделка"))
	b.Blank()
	f.dealBody(&b, d)
	return b.String()
}

// DealCompleted renders the notification for a deal reaching WON or LOST.
func (f Formatter) DealCompleted(d domain.Deal) string {
	var b tgui.Builder
	if d.Status == domain.DealLost {
		b.Line(tgui.Raw("❌ "), tgui.B("Сделка проиграна"))
	} else {
		b.Line(tgui.Raw("🎉 "), tgui.B("Сделка успешно закрыта"))
	}
	b.Blank()
	f.dealBody(&b, d)
	return b.String()
}

func (f Formatter) dealBody(b *tgui.Builder, d domain.Deal) {
	b.Line(field("Название", d.Title)...)
	b.Line(field("Сумма", FormatAmount(d.Amount, d.Currency))...)
	b.Line(field("Клиент", clientName(d.Client))...)
	b.Line(field("Менеджер", managerName(d.Manager))...)
	b.Line(field("Статус", dealStatus(d.Status))...)
	if d.EstimatedClosingDate != nil {
		b.Line(field("Ожидаемая дата закрытия", f.fmtTime(*d.EstimatedClosingDate, dateLayout))...)
	}
}

// TestMessage is sent by the connection test endpoint.
func (f Formatter) TestMessage(now time.Time) string {
	var b tgui.Builder
	b.Line(tgui.Raw("✅ "), tgui.B("Тестовое сообщение"))
	b.Line(tgui.Esc("Уведомления CRM настроены. " + f.fmtTime(now, dateTimeLayout)))
	return b.String()
}

func managerName(u *domain.UserRef) string {
	if u == nil {
		return unassigned
	}
	return orDefault(u.Name, unassigned)
}

func clientName(c *domain.ClientRef) string {
	if c == nil {
		return unknown
	}
	return orDefault(c.Name, unknown)
}
