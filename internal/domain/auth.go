package domain

// AccountType differentiates the two sides of the marketplace.
type AccountType string

const (
	AccountTypeCustomer AccountType = "CUSTOMER"
	AccountTypeCompany  AccountType = "COMPANY"
)

// Valid reports whether the account type is known.
func (a AccountType) Valid() bool {
	return a == AccountTypeCustomer || a == AccountTypeCompany
}

// SessionContext is the authenticated identity a chat session runs as.
// Token is forwarded to the backend on every call.
type SessionContext struct {
	UserID  string
	Account AccountType
	Token   string
}
