package hello

import "strings"

func Name() string { return "hello" }

func ProcessMention(mention map[string]string) (string, error) {
	if strings.Contains(strings.ToLower(mention["content"]), "hello") {
		return "Hello @" + mention["author"] + ".", nil
	}
	return "", nil
}
