package schedule

func demoSlots(date string) []slot {
	return []slot{
		{Date: date, Time: "09:00", Technician: "T-07", WorkOrder: "WO-1001", Free: false},
		{Date: date, Time: "11:00", Technician: "T-07", Free: true},
		{Date: date, Time: "13:00", Technician: "T-11", Free: true},
		{Date: date, Time: "15:00", Technician: "T-03", WorkOrder: "WO-1002", Free: false},
	}
}
