package cel

var ConditionExpressionExamples = map[string]string{
	"job_status":            `job.status == "completed"`,
	"payload_transition":    `payload.to == "completed" && payload.from != "cancelled"`,
	"numeric_threshold":     `material.quantity < 10.0`,
	"string_contains":       `contact.email.endsWith("@example.com")`,
	"in_list":               `listing.status in ["active", "pending"]`,
	"has_field":             `has(contact.phone) && contact.phone != ""`,
	"nested_field":          `job.address.city == "Denver"`,
	"event_type":            `event.type == "schedule.updated"`,
	"cross_entity":          `has(assignment.jobId) && assignment.jobId == job.id`,
	"complex_logic":         `(job.priority == "high" || job.priority == "urgent") && job.status != "closed"`,
	"report_ready":          `report.state == "final" && has(report.pdfUrl)`,
	"appraisal_value_range": `appraisal.value >= 100000.0 && appraisal.value <= 500000.0`,
}
