package domain

type PreviewStatus string

const (
	PreviewStatusPossible                 PreviewStatus = "preview_possible"
	PreviewStatusAwaitingScanStatus       PreviewStatus = "awaiting_scan_status"
	PreviewStatusNotPossibleScanError     PreviewStatus = "preview_not_possible_scan_status_error"
	PreviewStatusNotPossibleWontCheck     PreviewStatus = "preview_not_possible_scan_status_wont_check"
	PreviewStatusNotPossibleBlocked       PreviewStatus = "preview_not_possible_scan_status_blocked"
	PreviewStatusNotPossibleWrongMimeType PreviewStatus = "preview_not_possible_wrong_mime_type"
	PreviewStatusGenerationFailed         PreviewStatus = "preview_not_possible_generation_failed"
)

var previewMimeTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"image/webp":      {},
	"image/tiff":      {},
	"image/heic":      {},
	"image/bmp":       {},
	"application/pdf": {},
}

var collaboraMimeTypes = map[string]struct{}{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.oasis.opendocument.text":                                   {},
	"application/vnd.oasis.opendocument.spreadsheet":                            {},
	"application/vnd.oasis.opendocument.presentation":                           {},
	"application/msword":            {},
	"application/vnd.ms-excel":      {},
	"application/vnd.ms-powerpoint": {},
	"application/rtf":               {},
	"text/csv":                      {},
	"text/plain":                    {},
}

// FileRecordStatus проекция состояния записи для клиентов
type FileRecordStatus struct {
	ScanStatus          ScanStatus    `json:"scan_status"`
	PreviewStatus       PreviewStatus `json:"preview_status"`
	IsUploading         bool          `json:"is_uploading"`
	IsCollaboraEditable bool          `json:"is_collabora_editable"`
}

func (f *FileRecord) Status() FileRecordStatus {
	return FileRecordStatus{
		ScanStatus:          f.SecurityCheck.Status,
		PreviewStatus:       f.PreviewStatus(),
		IsUploading:         f.IsUploading,
		IsCollaboraEditable: f.IsCollaboraEditable(),
	}
}

func (f *FileRecord) PreviewStatus() PreviewStatus {
	switch {
	case f.PreviewGenerationFailed:
		return PreviewStatusGenerationFailed
	case f.IsBlocked():
		return PreviewStatusNotPossibleBlocked
	case !f.IsPreviewPossible():
		return PreviewStatusNotPossibleWrongMimeType
	case f.IsVerified():
		return PreviewStatusPossible
	case f.IsPending():
		return PreviewStatusAwaitingScanStatus
	case f.SecurityCheck.Status == ScanStatusWontCheck:
		return PreviewStatusNotPossibleWontCheck
	default:
		return PreviewStatusNotPossibleScanError
	}
}

func (f *FileRecord) IsPreviewPossible() bool {
	_, ok := previewMimeTypes[f.MimeType]
	return ok
}

func (f *FileRecord) IsCollaboraEditable() bool {
	_, ok := collaboraMimeTypes[f.MimeType]
	return ok
}

// IsStreamScannable типы, которые можно проверять антивирусом прямо во время загрузки
func (f *FileRecord) IsStreamScannable() bool {
	return f.IsPreviewPossible() || f.IsCollaboraEditable()
}

func (f *FileRecord) IsBlocked() bool {
	return f.SecurityCheck.Status == ScanStatusBlocked
}

func (f *FileRecord) IsVerified() bool {
	return f.SecurityCheck.Status == ScanStatusVerified
}

func (f *FileRecord) IsPending() bool {
	return f.SecurityCheck.Status == ScanStatusPending
}
