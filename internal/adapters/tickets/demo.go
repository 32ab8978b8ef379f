package tickets

func demoTickets(customerID string) []ticket {
	all := []ticket{
		{ID: "TK-201", CustomerID: "C-1001", Subject: "No heat", Description: "Furnace not producing heat since Monday", Status: "open", Priority: "urgent", Confidence: 0.9, CreatedAt: "2026-08-24T09:15:00Z"},
		{ID: "TK-202", CustomerID: "C-1001", Subject: "Thermostat reading wrong", Description: "Display shows 85F in a cold room", Status: "resolved", Priority: "low", Confidence: 0.7, CreatedAt: "2026-08-10T14:02:00Z"},
		{ID: "TK-204", CustomerID: "C-1003", Subject: "Water heater leak", Description: "Slow leak at the base of the tank", Status: "open", Priority: "high", Confidence: 0.8, CreatedAt: "2026-08-27T08:40:00Z"},
	}
	if customerID == "" {
		return all
	}
	var out []ticket
	for _, tk := range all {
		if tk.CustomerID == customerID {
			out = append(out, tk)
		}
	}
	return out
}

func demoTicket(id string) ticket {
	for _, tk := range demoTickets("") {
		if tk.ID == id {
			return tk
		}
	}
	return ticket{ID: id, CustomerID: "C-1001", Subject: "No heat", Description: "Furnace not producing heat", Status: "open", Priority: "high", Confidence: 0.75, CreatedAt: "2026-08-24T09:15:00Z"}
}
