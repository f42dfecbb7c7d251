package rate

func identityKey(prefix, identity string) string {
	return prefix + ":id:" + identity
}

func originKey(prefix, origin string) string {
	return prefix + ":ip:" + origin
}
