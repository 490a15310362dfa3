package wire

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
)

// Perform is the operation an analysis request asks the engine to carry out.
type Perform int32

// Perform values.
const (
	PerformInit   Perform = 0
	PerformRun    Perform = 1
	PerformRender Perform = 2
	PerformSave   Perform = 3
)

var performNames = map[Perform]string{
	PerformInit:   "INIT",
	PerformRun:    "RUN",
	PerformRender: "RENDER",
	PerformSave:   "SAVE",
}

func (p Perform) String() string {
	if s, ok := performNames[p]; ok {
		return s
	}
	return "PERFORM_" + strconv.Itoa(int(p))
}

// ParsePerform maps a perform name (as produced by String) back to its value.
func ParsePerform(s string) (Perform, error) {
	for p, name := range performNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown perform %q", s)
}

// AnalysisStatus is the progress marker the engine reports in a response.
type AnalysisStatus int32

// AnalysisStatus values. Inited and Complete are terminal markers; the rest
// report progress or failure.
const (
	StatusNone     AnalysisStatus = 0
	StatusInited   AnalysisStatus = 1
	StatusRunning  AnalysisStatus = 2
	StatusComplete AnalysisStatus = 3
	StatusError    AnalysisStatus = 4
	StatusAborted  AnalysisStatus = 5
)

var statusNames = map[AnalysisStatus]string{
	StatusNone:     "ANALYSIS_NONE",
	StatusInited:   "ANALYSIS_INITED",
	StatusRunning:  "ANALYSIS_RUNNING",
	StatusComplete: "ANALYSIS_COMPLETE",
	StatusError:    "ANALYSIS_ERROR",
	StatusAborted:  "ANALYSIS_ABORTED",
}

// AllStatuses lists every defined status in numeric order.
var AllStatuses = []AnalysisStatus{StatusNone, StatusInited, StatusRunning, StatusComplete, StatusError, StatusAborted}

func (s AnalysisStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "ANALYSIS_STATUS_" + strconv.Itoa(int(s))
}

// AnalysisRequest asks the engine to perform an operation on one analysis.
type AnalysisRequest struct {
	DatasetID  string
	AnalysisID uint32
	Name       string
	Namespace  string
	Perform    Perform
	Options    []byte
	Revision   uint32
}

const (
	requestFieldDatasetID  protowire.Number = 1
	requestFieldAnalysisID protowire.Number = 2
	requestFieldName       protowire.Number = 3
	requestFieldNamespace  protowire.Number = 4
	requestFieldPerform    protowire.Number = 5
	requestFieldOptions    protowire.Number = 6
	requestFieldRevision   protowire.Number = 7
)

// Marshal encodes the request in protobuf wire format.
func (r *AnalysisRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, requestFieldDatasetID, r.DatasetID)
	b = appendVarintField(b, requestFieldAnalysisID, uint64(r.AnalysisID))
	b = appendStringField(b, requestFieldName, r.Name)
	b = appendStringField(b, requestFieldNamespace, r.Namespace)
	b = appendVarintField(b, requestFieldPerform, uint64(r.Perform))
	b = appendBytesField(b, requestFieldOptions, r.Options)
	b = appendVarintField(b, requestFieldRevision, uint64(r.Revision))
	return b
}

// UnmarshalAnalysisRequest decodes a request from b.
func UnmarshalAnalysisRequest(b []byte) (*AnalysisRequest, error) {
	r := &AnalysisRequest{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			switch num {
			case requestFieldAnalysisID:
				r.AnalysisID = uint32(v)
			case requestFieldPerform:
				r.Perform = Perform(v)
			case requestFieldRevision:
				r.Revision = uint32(v)
			default:
				return skipField, nil
			}
			return n, nil
		}
		if typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			switch num {
			case requestFieldDatasetID:
				r.DatasetID = string(v)
			case requestFieldName:
				r.Name = string(v)
			case requestFieldNamespace:
				r.Namespace = string(v)
			case requestFieldOptions:
				r.Options = append([]byte(nil), v...)
			default:
				return skipField, nil
			}
			return n, nil
		}
		return skipField, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal analysis request: %w", err)
	}
	return r, nil
}

// AnalysisResponse carries an engine result for one analysis.
type AnalysisResponse struct {
	DatasetID  string
	AnalysisID uint32
	Name       string
	Namespace  string
	Status     AnalysisStatus
	Revision   uint32
	Results    []byte
	Error      string
}

const (
	responseFieldDatasetID  protowire.Number = 1
	responseFieldAnalysisID protowire.Number = 2
	responseFieldName       protowire.Number = 3
	responseFieldNamespace  protowire.Number = 4
	responseFieldStatus     protowire.Number = 5
	responseFieldRevision   protowire.Number = 6
	responseFieldResults    protowire.Number = 7
	responseFieldError      protowire.Number = 8
)

// Marshal encodes the response in protobuf wire format.
func (r *AnalysisResponse) Marshal() []byte {
	var b []byte
	b = appendStringField(b, responseFieldDatasetID, r.DatasetID)
	b = appendVarintField(b, responseFieldAnalysisID, uint64(r.AnalysisID))
	b = appendStringField(b, responseFieldName, r.Name)
	b = appendStringField(b, responseFieldNamespace, r.Namespace)
	b = appendVarintField(b, responseFieldStatus, uint64(r.Status))
	b = appendVarintField(b, responseFieldRevision, uint64(r.Revision))
	b = appendBytesField(b, responseFieldResults, r.Results)
	b = appendStringField(b, responseFieldError, r.Error)
	return b
}

// UnmarshalAnalysisResponse decodes a response from b.
func UnmarshalAnalysisResponse(b []byte) (*AnalysisResponse, error) {
	r := &AnalysisResponse{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			switch num {
			case responseFieldAnalysisID:
				r.AnalysisID = uint32(v)
			case responseFieldStatus:
				r.Status = AnalysisStatus(v)
			case responseFieldRevision:
				r.Revision = uint32(v)
			default:
				return skipField, nil
			}
			return n, nil
		}
		if typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			switch num {
			case responseFieldDatasetID:
				r.DatasetID = string(v)
			case responseFieldName:
				r.Name = string(v)
			case responseFieldNamespace:
				r.Namespace = string(v)
			case responseFieldResults:
				r.Results = append([]byte(nil), v...)
			case responseFieldError:
				r.Error = string(v)
			default:
				return skipField, nil
			}
			return n, nil
		}
		return skipField, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal analysis response: %w", err)
	}
	return r, nil
}

// IsComplete reports whether resp is the final response for req. A response is
// complete when its status is Complete, or when it is Inited and the request
// asked only for initialisation.
func IsComplete(resp *AnalysisResponse, req *AnalysisRequest) bool {
	if resp.Status == StatusComplete {
		return true
	}
	return resp.Status == StatusInited && req.Perform == PerformInit
}
