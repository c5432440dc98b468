package store

const (
	Products           = "products"
	CategoryDiscounts  = "categoryDiscounts"
	Sales              = "sales"
	Purchases          = "purchases"
	PurchaseOrders     = "purchaseOrders"
	Payments           = "payments"
	StockCounts        = "stockCounts"
	CashDrawerSessions = "cashDrawerSessions"
	CashTransactions   = "transactions"
)

// Collection is the collection path of name inside a partition.
func Collection(partition string, name string) string {
	return Join("users", partition, name)
}

// Doc is the document path of id inside a partition collection.
func Doc(partition string, name string, id string) string {
	return Join("users", partition, name, id)
}

func CashTransactionsOf(partition string, sessionID string) string {
	return Join("users", partition, CashDrawerSessions, sessionID, CashTransactions)
}

const AuditLogs = "auditLogs"
