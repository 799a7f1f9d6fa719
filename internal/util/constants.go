package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 文件上传相关常量
const (
	MimeImage = "image/"
	MimePDF   = "application/pdf"
	MimeZip   = "application/zip"
	MimeText  = "text/plain"
)

// AllowedAnswerMimeTypes 作答附件允许的 MIME 类型（前缀或完整类型）
var AllowedAnswerMimeTypes = []string{MimeImage, MimePDF, MimeZip, MimeText}

// 作答附件存储目录
const AnswerUploadDir = "answers"

// 本地存储附件的下载路由前缀（需登录）
const LocalFileRoute = "/api/uploads/"
