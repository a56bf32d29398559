package router

import kit "crmbot/internal/transport"

// Commands is the bot command menu published with setMyCommands.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "tasks", Description: "Задачи на ближайшие 24 часа"},
		{Command: "deals", Description: "Активные сделки"},
		{Command: "help", Description: "Список команд"},
		{Command: "start", Description: "Начать работу"},
	}
}
