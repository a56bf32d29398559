package messages

import (
	"fmt"

	"crmbot/internal/domain"
	"crmbot/pkg/tgui"
)

const listTitleLimit = 40

// HelpText answers /start and /help.
func (f Formatter) HelpText() string {
	var b tgui.Builder
	b.Line(tgui.Raw("🤖 "), tgui.B("CRM бот"))
	b.Blank()
	b.Line(tgui.Raw("Доступные команды:"))
	b.Line(tgui.Raw("/tasks - задачи на ближайшие 24 часа"))
	b.Line(tgui.Raw("/deals - активные сделки"))
	b.Line(tgui.Raw("/help - эта справка"))
	return b.String()
}

func (f Formatter) UnknownCommand() string {
	return "❓ Неизвестная команда. Используйте /help для списка команд."
}

func (f Formatter) Greeting() string {
	return "👋 Здравствуйте! Я бот CRM. Используйте /help для списка команд."
}

func (f Formatter) TaskNotFound() string { return "❌ Задача не найдена" }
func (f Formatter) DealNotFound() string { return "❌ Сделка не найдена" }

// TaskList renders the /tasks reply; buttons are attached separately.
func (f Formatter) TaskList(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "✅ Задач на ближайшие 24 часа нет"
	}
	var b tgui.Builder
	b.Line(tgui.Raw("📋 "), tgui.B("Задачи на ближайшие 24 часа:"))
	b.Blank()
	for i, t := range tasks {
		b.Line(tgui.Esc(fmt.Sprintf("%d. ", i+1)), f.summaryLine(t, dateTimeLayout))
	}
	return b.String()
}

// DealList renders the /deals reply.
func (f Formatter) DealList(deals []domain.Deal) string {
	if len(deals) == 0 {
		return "ℹ️ Активных сделок нет"
	}
	var b tgui.Builder
	b.Line(tgui.Raw("💼 "), tgui.B("Активные сделки:"))
	b.Blank()
	for i, d := range deals {
		b.Line(
			tgui.Esc(fmt.Sprintf("%d. ", i+1)),
			tgui.B(d.Title),
			tgui.Esc(fmt.Sprintf(" (%s, %s)", FormatAmount(d.Amount, d.Currency), dealStatus(d.Status))),
		)
	}
	return b.String()
}

// TaskButtonText and DealButtonText label inline buttons of list replies.
func TaskButtonText(t domain.Task) string {
	return PriorityIcon(t.Priority) + " " + tgui.TruncRunes(t.Title, listTitleLimit)
}

func DealButtonText(d domain.Deal) string {
	return "💼 " + tgui.TruncRunes(d.Title, listTitleLimit)
}

// TaskDetails answers a task_<id> callback.
func (f Formatter) TaskDetails(t domain.Task) string {
	var b tgui.Builder
	b.Line(tgui.Raw("📋 "), tgui.B(t.Title))
	b.Line(idLine(t.ID)...)
	b.Blank()
	b.Line(field("Статус", taskStatus(t.Status))...)
	b.Line(field("Срок", f.fmtTime(t.DueDate, dateTimeLayout))...)
	b.Line(field("Исполнитель", orDefault(t.AssigneeName(), unassigned))...)
	p := priority(t.Priority)
	b.Line(field("Приоритет", p.icon+" "+p.text)...)
	if t.Client != nil {
		b.Line(field("Клиент", orDefault(t.Client.Name, unknown))...)
	}
	if t.Deal != nil {
		b.Line(field("Сделка", orDefault(t.Deal.Title, unknown))...)
	}
	if t.Description != "" {
		b.Blank()
		b.Line(tgui.I(tgui.TruncRunes(t.Description, descriptionLimit)))
	}
	return b.String()
}

// DealDetails answers a deal_<id> callback.
func (f Formatter) DealDetails(d domain.Deal) string {
	var b tgui.Builder
	b.Line(tgui.Raw("💼 "), tgui.B(d.Title))
	b.Line(idLine(d.ID)...)
	b.Blank()
	f.dealBody(&b, d)
	return b.String()
}

func idLine(id int64) []tgui.H {
	return []tgui.H{tgui.B("ID:"), tgui.Raw(" "), tgui.Code(fmt.Sprintf("%d", id))}
}
