package api

import "lending/internal/models"

type CheckoutRequest struct {
	Name string `json:"name"`
}

type TransferRequest struct {
	To string `json:"to"`
}

type StatusResponse struct {
	Asset     string             `json:"asset"`
	Available bool               `json:"available"`
	Holder    string             `json:"holder"`
	Record    *models.LoanRecord `json:"record,omitempty"`
}

type RecordsResponse struct {
	Records []models.LoanRecord `json:"records"`
}

type CheckoutResponse struct {
	Holder string `json:"holder"`
}

type ReturnResponse struct {
	Holder string `json:"holder"`
}

type TransferResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type errorDTO struct {
	Error string `json:"error"`
}
