package internal

type Customer struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Nickname  *string `json:"nickname"`
	Address   string  `json:"address"`
	Remarks   string  `json:"remarks"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// OrderRecord is one persisted order: a single product for a single
// customer. UnitPrice and TotalPrice are nil for unpriced items.
type OrderRecord struct {
	ID           int      `json:"id"`
	CustomerID   int      `json:"customerId"`
	CustomerName string   `json:"customerName"`
	ProductName  string   `json:"productName"`
	Quantity     float64  `json:"quantity"`
	UnitPrice    *float64 `json:"unitPrice"`
	TotalPrice   *float64 `json:"totalPrice"`
	DeliveryDate string   `json:"deliveryDate"`
	Remarks      string   `json:"remarks"`
	EmailID      *int     `json:"emailId,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
}

// OrderExportRow is an order joined with its customer for spreadsheets.
type OrderExportRow struct {
	OrderRecord
	CustomerAddress string
}

type OrderFilter struct {
	CustomerID *int
	StartDate  string
	EndDate    string
}

type Settings struct {
	Model  string `json:"model"`
	APIKey string `json:"apiKey"`
	APIURL string `json:"apiUrl"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

const (
	EmailFetched   = "fetched"
	EmailProcessed = "processed"
	EmailSkipped   = "skipped"
	EmailFailed    = "failed"
	EmailExported  = "exported"
)

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
