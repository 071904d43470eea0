package api

// StatusOf exposes the error mapping to the external test package.
func StatusOf(err error) (int, string) {
	status, body := statusOf(err)
	return status, body.Error
}
