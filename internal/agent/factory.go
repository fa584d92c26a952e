package agent

// Names of the default agents.
const (
	FileOpsAgent = "file_ops_agent"
	ShellAgent   = "shell_agent"
	WebAgent     = "web_agent"
	GeneralAgent = "general_agent"
)

// DefaultBuilders returns the curated agent definitions over the built-in tools.
// general_agent is granted every tool in the registry it is built against.
func DefaultBuilders() []*Builder {
	return []*Builder{
		NewBuilder(FileOpsAgent).
			Description("Handles file system operations including reading and writing files. " +
				"Use this agent for tasks involving file I/O operations.").
			SystemPrompt("You are a file operations specialist. Your role is to handle file system tasks. " +
				"You can read files, write files, and manage file contents. " +
				"Focus on providing accurate file operations and clear feedback about what was done.").
			Tools("read_file", "write_file", "append_file"),

		NewBuilder(ShellAgent).
			Description("Executes shell commands and system operations. " +
				"Use this agent for tasks involving command-line operations, " +
				"directory listings, process management, and system queries.").
			SystemPrompt("You are a shell command specialist. Your role is to execute system commands. " +
				"You can run shell commands to interact with the operating system. " +
				"Always be cautious with commands and provide clear explanations of what each command does. " +
				"Focus on safe, read-only operations when possible.").
			Tools("execute_shell"),

		NewBuilder(WebAgent).
			Description("Handles HTTP requests and web-based operations. " +
				"Use this agent for tasks involving fetching web content, " +
				"making API calls, and retrieving online information.").
			SystemPrompt("You are a web operations specialist. Your role is to handle HTTP requests. " +
				"You can fetch web pages, call APIs, and retrieve online information. " +
				"Always verify URLs and provide clear summaries of the data retrieved.").
			Tools("http_request"),

		NewBuilder(GeneralAgent).
			Description("General-purpose agent with access to all tools. " +
				"Use this agent for tasks that require multiple tool categories " +
				"or when the task doesn't clearly fit into a specific domain.").
			SystemPrompt("You are a general-purpose autonomous agent. " +
				"You have access to file operations, shell commands, and web requests. " +
				"Choose the appropriate tools for each task and execute them efficiently."),
	}
}

// DefaultCatalog builds the default agents against deps.Tools.
func DefaultCatalog(deps Deps) (*Catalog, error) {
	return BuildAll(deps, DefaultBuilders()...)
}
