package utils

// PanicIfNeeded hands err to the recovery middleware, which renders it as a response.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
