package lending

import "time"

const dateLayout = "2006-01-02"

const (
	StatusCheckedOut = "Book checked out successfully"
	StatusReturned   = "Book returned successfully"
)

type TransactionResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	BookID          string    `json:"book_id"`
	BookTitle       string    `json:"book_title"`
	TransactionType TxType    `json:"transaction_type"`
	TransactionDate time.Time `json:"transaction_date"`
	DueDate         *string   `json:"due_date"` // RETURN は null
}

// ActionResponse is the body of a successful checkout or return.
type ActionResponse struct {
	Status      string              `json:"status"`
	Transaction TransactionResponse `json:"transaction"`
}

type HistoryResponse struct {
	UserID       string                `json:"user_id"`
	Transactions []TransactionResponse `json:"transactions"`
}

type ListTransactionsResult struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	NextOffset int                   `json:"next_offset"`
}

func toResponse(r *Record) TransactionResponse {
	resp := TransactionResponse{
		ID:              r.ID,
		UserID:          r.UserID,
		BookID:          r.BookID,
		BookTitle:       r.BookTitle,
		TransactionType: r.Type,
		TransactionDate: r.TransactionDate,
	}
	if r.DueDate.Valid {
		v := r.DueDate.Time.Format(dateLayout)
		resp.DueDate = &v
	}
	return resp
}

func toResponses(rows []Record) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toResponse(&rows[i]))
	}
	return out
}
