package disabled

func Name() string { return "disabled" }

func ProcessMention(mention map[string]string) (string, error) {
	return "should never load", nil
}
