package dispatch

type technician struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Skills    []string `json:"skills"`
	Available bool   `json:"available"`
	Location  string `json:"location"`
}

// Synthesized examples served when the backing dispatch service is
// unreachable. Values are stable so tests and demos are deterministic.

func demoWorkOrders() []workOrder {
	return []workOrder{
		{ID: "WO-1001", Customer: "John Smith", Service: "HVAC repair", Status: "scheduled", Technician: "T-07", Urgency: 6, Location: "Riverside", ScheduledAt: "09:00"},
		{ID: "WO-1002", Customer: "Maria Lopez", Service: "Water heater install", Status: "in_progress", Technician: "T-03", Urgency: 4, Location: "Downtown"},
		{ID: "WO-1003", Customer: "Acme Property Mgmt", Service: "Furnace inspection", Status: "overdue", Urgency: 8, Location: "Northside"},
	}
}

func demoWorkOrder(id string) workOrder {
	for _, wo := range demoWorkOrders() {
		if wo.ID == id {
			return wo
		}
	}
	return workOrder{ID: id, Customer: "John Smith", Service: "HVAC repair", Status: "scheduled", Technician: "T-07", Urgency: 5, Location: "Riverside"}
}

func demoTechnicians() []technician {
	return []technician{
		{ID: "T-03", Name: "Dana Reyes", Skills: []string{"plumbing", "water heaters"}, Available: false, Location: "Downtown"},
		{ID: "T-07", Name: "Marcus Webb", Skills: []string{"hvac", "electrical"}, Available: true, Location: "Riverside"},
		{ID: "T-11", Name: "Priya Natarajan", Skills: []string{"hvac", "refrigeration"}, Available: true, Location: "Northside"},
	}
}
