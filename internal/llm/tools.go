package llm

// AssistantTools are offered to the chat fallback.
var AssistantTools = []Tool{
	{
		Name:        "get_time",
		Description: "Get the current date, time and weekday in the user's timezone.",
		Parameters:  obj(nil),
	},
	{
		Name:        "get_day_summary",
		Description: "Get calendar events plus busy and spare time within working hours for a day.",
		Parameters: obj(map[string]any{
			"date": prop("string", "Day in YYYY-MM-DD format (default today)"),
		}),
	},
	{
		Name:        "read_daily_log",
		Description: "Read the daily log document: morning answers, plans, check-in, todos and notes.",
		Parameters: obj(map[string]any{
			"date": prop("string", "Day in YYYY-MM-DD format (default today)"),
		}),
	},
	{
		Name:        "add_todo",
		Description: "Add a todo item to today's daily log.",
		Parameters: objReq(map[string]any{
			"text": prop("string", "The todo item"),
		}, "text"),
	},
	{
		Name:        "add_note",
		Description: "Add a timestamped note to today's daily log.",
		Parameters: objReq(map[string]any{
			"text": prop("string", "The note"),
		}, "text"),
	},
}

// Helper functions for building JSON Schema objects.

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func obj(properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func objReq(properties map[string]any, required ...string) map[string]any {
	s := obj(properties)
	s["required"] = required
	return s
}
