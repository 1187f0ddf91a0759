package lending

import "context"

// History returns all transactions of userID, most recent first.
func (s *Service) History(ctx context.Context, userID string) (HistoryResponse, error) {
	rows, err := s.store.History(ctx, userID)
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{UserID: userID, Transactions: toResponses(rows)}, nil
}
