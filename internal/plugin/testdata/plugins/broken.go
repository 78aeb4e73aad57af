package broken

// Missing ProcessMention: the loader must skip this file with a warning.

func Name() string { return "broken" }
