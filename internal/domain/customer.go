package domain

import "time"

// Customer is the domain model for customers who open support chats.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// CustomerDetails is the denormalized summary attached to session listings.
// Missing customers degrade to the placeholder values rather than failing.
type CustomerDetails struct {
	Name  string
	Email string
	Phone string
}

// PlaceholderCustomer is used when a session references an unknown customer.
func PlaceholderCustomer() CustomerDetails {
	return CustomerDetails{Name: "Unknown", Email: "", Phone: ""}
}

// Details converts a customer record to its listing summary.
func (c *Customer) Details() CustomerDetails {
	return CustomerDetails{Name: c.Name, Email: c.Email, Phone: c.Phone}
}
