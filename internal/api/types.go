package api

// JobStatus values are matched exactly as the platform spells them. An
// unrecognized value is neither success nor failure and polling simply
// continues until its attempts run out.
type JobStatus string

const (
	JobPending         JobStatus = "Pending"
	JobReadyToGenerate JobStatus = "ReadyToGenerate"
	JobGenerating      JobStatus = "Generating"
	JobDone            JobStatus = "Done"
	JobFailed          JobStatus = "Failed"
)

// Job is the latest polled snapshot of a generation job. Snapshots are
// immutable once read and discarded after each poll cycle.
type Job struct {
	ID      string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	AppSpec *AppSpec  `json:"appSpec,omitempty"`
}

// AppSpec appears on a job once it reaches Done.
type AppSpec struct {
	AppKey string `json:"appKey"`
}

type PublicationStatus string

const (
	PublicationQueued   PublicationStatus = "Queued"
	PublicationRunning  PublicationStatus = "Running"
	PublicationFinished PublicationStatus = "Finished"
	PublicationFailed   PublicationStatus = "Failed"
)

// Publication is the latest polled snapshot of a publication job.
type Publication struct {
	Key    string            `json:"publicationKey"`
	Status PublicationStatus `json:"status"`
}

// AppDetails is fetched once after publication succeeds.
type AppDetails struct {
	AppKey  string `json:"appKey"`
	URLPath string `json:"urlPath"`
}

// createJobRequest is a wire contract: field names, the empty files array
// and the ignoreTenantContext flag must be sent exactly as below.
type createJobRequest struct {
	Prompt              string   `json:"prompt"`
	Files               []string `json:"files"`
	IgnoreTenantContext bool     `json:"ignoreTenantContext"`
}

// createPublicationRequest is a wire contract: applicationRevision is always
// 1 and downloadUrl is always null.
type createPublicationRequest struct {
	ApplicationKey      string  `json:"applicationKey"`
	ApplicationRevision int     `json:"applicationRevision"`
	DownloadURL         *string `json:"downloadUrl"`
}

type createJobResponse struct {
	JobID string `json:"jobId"`
}

type createPublicationResponse struct {
	PublicationKey string `json:"publicationKey"`
}
