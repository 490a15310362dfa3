package engine

import (
	"time"

	"github.com/jonathon-love/silky/internal/model"
	"github.com/jonathon-love/silky/internal/wire"
)

// NewResultRecord flattens a matched response and its request into the form
// streamed to subscribers and written to history.
func NewResultRecord(managerID string, id uint64, resp *wire.AnalysisResponse, req *wire.AnalysisRequest, complete bool) *model.ResultRecord {
	return &model.ResultRecord{
		ManagerID:  managerID,
		RequestID:  id,
		DatasetID:  resp.DatasetID,
		AnalysisID: resp.AnalysisID,
		Name:       resp.Name,
		Perform:    req.Perform.String(),
		Status:     resp.Status.String(),
		Complete:   complete,
		Revision:   resp.Revision,
		Results:    resp.Results,
		Error:      resp.Error,
		ReceivedAt: time.Now().UTC(),
	}
}
