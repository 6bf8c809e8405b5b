package domain

// SubjectType differentiates customer vs staff tokens. The values match
// SenderType so a token subject maps directly onto a message sender.
type SubjectType string

const (
	SubjectTypeCustomer SubjectType = SubjectType(SenderCustomer)
	SubjectTypeStaff    SubjectType = SubjectType(SenderStaff)
)
