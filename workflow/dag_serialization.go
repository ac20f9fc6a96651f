package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MarshalJSON serializes a DAGDefinition to JSON
func (d *DAGDefinition) MarshalJSON() ([]byte, error) {
	type Alias DAGDefinition
	return json.Marshal((*Alias)(d))
}

// UnmarshalJSON deserializes a DAGDefinition from JSON
func (d *DAGDefinition) UnmarshalJSON(data []byte) error {
	type Alias DAGDefinition
	aux := (*Alias)(d)
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("failed to unmarshal DAGDefinition: %w", err)
	}
	return nil
}

// MarshalYAML serializes a DAGDefinition to YAML
func (d *DAGDefinition) MarshalYAML() (interface{}, error) {
	type Alias DAGDefinition
	return (*Alias)(d), nil
}

// UnmarshalYAML deserializes a DAGDefinition from YAML
func (d *DAGDefinition) UnmarshalYAML(node *yaml.Node) error {
	type Alias DAGDefinition
	aux := (*Alias)(d)
	if err := node.Decode(aux); err != nil {
		return fmt.Errorf("failed to unmarshal DAGDefinition: %w", err)
	}
	return nil
}

// ToJSON converts a DAGDefinition to JSON string
func (d *DAGDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a DAGDefinition to YAML string
func (d *DAGDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// FromJSON creates a DAGDefinition from JSON string
func FromJSON(jsonStr string) (*DAGDefinition, error) {
	var def DAGDefinition
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}

	if err := ValidateDAGDefinition(&def); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &def, nil
}

// FromYAML creates a DAGDefinition from YAML string
func FromYAML(yamlStr string) (*DAGDefinition, error) {
	var def DAGDefinition
	if err := yaml.Unmarshal([]byte(yamlStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}

	if err := ValidateDAGDefinition(&def); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &def, nil
}

// LoadFromJSONFile loads a DAGDefinition from a JSON file
func LoadFromJSONFile(filename string) (*DAGDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return FromJSON(string(data))
}

// LoadFromYAMLFile loads a DAGDefinition from a YAML file
func LoadFromYAMLFile(filename string) (*DAGDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return FromYAML(string(data))
}

// SaveToJSONFile saves a DAGDefinition to a JSON file
func (d *DAGDefinition) SaveToJSONFile(filename string) error {
	jsonStr, err := d.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal DAG to JSON: %w", err)
	}

	if err := os.WriteFile(filename, []byte(jsonStr), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// SaveToYAMLFile saves a DAGDefinition to a YAML file
func (d *DAGDefinition) SaveToYAMLFile(filename string) error {
	yamlStr, err := d.ToYAML()
	if err != nil {
		return fmt.Errorf("marshal DAG to YAML: %w", err)
	}

	if err := os.WriteFile(filename, []byte(yamlStr), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ValidateDAGDefinition validates a loaded DAGDefinition
func ValidateDAGDefinition(def *DAGDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("workflow name is required")
	}

	if len(def.Nodes) == 0 {
		return fmt.Errorf("workflow must have at least one node")
	}

	if def.Entry == "" {
		return fmt.Errorf("entry node is required")
	}

	entryExists := false
	nodeIDs := make(map[string]bool)

	for _, node := range def.Nodes {
		if node.ID == "" {
			return fmt.Errorf("node ID is required")
		}

		if nodeIDs[node.ID] {
			return fmt.Errorf("duplicate node ID: %s", node.ID)
		}
		nodeIDs[node.ID] = true

		if node.ID == def.Entry {
			entryExists = true
		}

		if node.Type == "" {
			return fmt.Errorf("node %s: type is required", node.ID)
		}

		switch NodeType(node.Type) {
		case NodeTypeStart:
			if len(node.Next) == 0 {
				return fmt.Errorf("node %s: start node requires an outgoing edge", node.ID)
			}
		case NodeTypeTask:
			if node.Step == "" {
				return fmt.Errorf("node %s: task node requires step", node.ID)
			}
		case NodeTypeCondition:
			if node.Condition == "" {
				return fmt.Errorf("node %s: condition node requires condition", node.ID)
			}
			if len(node.Next) == 0 {
				return fmt.Errorf("node %s: condition node requires at least one edge", node.ID)
			}
		case NodeTypeParallel:
			if len(node.Branches) == 0 && len(node.Next) < 2 {
				return fmt.Errorf("node %s: parallel node requires branches or at least 2 next nodes", node.ID)
			}
		case NodeTypeJoin:
			if len(node.WaitFor) == 0 {
				return fmt.Errorf("node %s: join node requires wait_for predecessors", node.ID)
			}
		case NodeTypeSubWorkflow:
			if node.SubGraph == nil {
				return fmt.Errorf("node %s: sub-workflow node requires subgraph", node.ID)
			}
			if err := ValidateDAGDefinition(node.SubGraph); err != nil {
				return fmt.Errorf("node %s: subgraph validation failed: %w", node.ID, err)
			}
		case NodeTypeWait:
			if node.WaitEventType == "" {
				return fmt.Errorf("node %s: wait node requires wait_event_type", node.ID)
			}
		case NodeTypeEnd:
			if len(node.Next) != 0 {
				return fmt.Errorf("node %s: end node must not have outgoing edges", node.ID)
			}
		default:
			return fmt.Errorf("node %s: invalid node type: %s", node.ID, node.Type)
		}
	}

	if !entryExists {
		return fmt.Errorf("entry node %s does not exist", def.Entry)
	}

	for _, node := range def.Nodes {
		for _, edge := range node.Next {
			if !nodeIDs[edge.To] {
				return fmt.Errorf("node %s: next node %s does not exist", node.ID, edge.To)
			}
		}
		for _, id := range node.WaitFor {
			if !nodeIDs[id] {
				return fmt.Errorf("node %s: wait_for node %s does not exist", node.ID, id)
			}
		}
		for _, id := range node.Branches {
			if !nodeIDs[id] {
				return fmt.Errorf("node %s: branch node %s does not exist", node.ID, id)
			}
		}
		if node.ErrorHandler != "" && !nodeIDs[node.ErrorHandler] {
			return fmt.Errorf("node %s: error_handler node %s does not exist", node.ID, node.ErrorHandler)
		}
	}

	return nil
}

// ToDAGDefinition converts a DAGWorkflow to a DAGDefinition for serialization.
// This only captures the structure, not runtime functions (conditions, steps).
func (w *DAGWorkflow) ToDAGDefinition() *DAGDefinition {
	def := &DAGDefinition{
		Name:        w.name,
		Description: w.description,
		Entry:       w.graph.entry,
		Nodes:       make([]NodeDefinition, 0, len(w.graph.nodes)),
		Metadata:    w.metadata,
	}

	for _, node := range w.graph.nodes {
		nodeDef := NodeDefinition{
			ID:            node.ID,
			Type:          string(node.Type),
			Branches:      node.Branches,
			WaitFor:       node.WaitFor,
			WaitEventType: node.WaitEventType,
			Metadata:      node.Metadata,
		}

		if node.Step != nil {
			nodeDef.Step = node.Step.Name()
		}

		if node.WaitTimeout > 0 {
			nodeDef.WaitTimeoutMs = node.WaitTimeout.Milliseconds()
		}

		if node.SubGraph != nil {
			subWorkflow := &DAGWorkflow{
				name:        w.name + "_subgraph",
				description: "Subgraph",
				graph:       node.SubGraph,
				metadata:    make(map[string]interface{}),
			}
			nodeDef.SubGraph = subWorkflow.ToDAGDefinition()
		}

		if handler, ok := w.graph.ErrorHandler(node.ID); ok {
			nodeDef.ErrorHandler = handler
		}

		for _, e := range w.graph.OutgoingEdges(node.ID) {
			nodeDef.Next = append(nodeDef.Next, EdgeDefinition{To: e.To, Condition: e.Condition})
		}

		def.Nodes = append(def.Nodes, nodeDef)
	}

	return def
}
