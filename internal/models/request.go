package models

// SubmitForecastRequest represents create forecast job request
type SubmitForecastRequest struct {
	UploadID     string   `json:"uploadId" validate:"required"`
	TimeColumn   string   `json:"timeColumn" validate:"required"`
	TargetColumn string   `json:"targetColumn" validate:"required"`
	Exogenous    []string `json:"exogenous,omitempty"`
	Horizon      int      `json:"horizon,omitempty" validate:"omitempty,min=1,max=365"`
	Model        string   `json:"model,omitempty"` // auto, arima, ets, xgboost
}

// ListJobsQuery represents list jobs query parameters
type ListJobsQuery struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}
