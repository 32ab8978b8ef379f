package customers

import "strings"

func demoCustomers() []customer {
	return []customer{
		{
			ID: "C-1001", Name: "John Smith", Phone: "555-0142", Email: "john.smith@example.com",
			Address: "12 Riverside Ave", AccountGrade: "A", OpenTickets: 1, LastService: "2026-08-24",
			Activity: []string{"ticket TK-201 opened", "furnace inspection completed", "invoice INV-88 paid"},
		},
		{
			ID: "C-1002", Name: "Maria Lopez", Phone: "555-0187", AccountGrade: "B", OpenTickets: 0,
			LastService: "2026-07-30",
			Activity:    []string{"water heater install scheduled"},
		},
		{
			ID: "C-1003", Name: "Acme Property Mgmt", Email: "facilities@acme.example.com",
			AccountGrade: "C", OpenTickets: 1,
			Activity: []string{"ticket TK-204 opened"},
		},
	}
}

func demoCustomer(id string) customer {
	for _, c := range demoCustomers() {
		if c.ID == id || strings.EqualFold(c.Name, id) {
			return c
		}
	}
	c := demoCustomers()[0]
	c.ID = id
	return c
}

func demoSearch(name string) []customer {
	if name == "" {
		return demoCustomers()
	}
	var out []customer
	needle := strings.ToLower(name)
	for _, c := range demoCustomers() {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}
